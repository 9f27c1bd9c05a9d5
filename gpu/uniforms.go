package gpu

// UniformKind is the shader type of a uniform value.
type UniformKind uint8

const (
	UniformFloat UniformKind = iota
	UniformVec2
	UniformInt
)

// Uniform is one named scalar or vector parameter of a dispatch.
type Uniform struct {
	Name string
	Kind UniformKind
	F    [2]float32
	I    int32
}

// Float builds a float uniform.
func Float(name string, v float32) Uniform {
	return Uniform{Name: name, Kind: UniformFloat, F: [2]float32{v, 0}}
}

// Vec2 builds a vec2 uniform.
func Vec2(name string, x, y float32) Uniform {
	return Uniform{Name: name, Kind: UniformVec2, F: [2]float32{x, y}}
}

// Int builds an int uniform.
func Int(name string, v int32) Uniform {
	return Uniform{Name: name, Kind: UniformInt, I: v}
}

// Uniforms is an ordered uniform set. Lookups are linear; sets are small
// and are resolved once per batch, not per invocation.
type Uniforms []Uniform

// Lookup returns the uniform with the given name.
func (u Uniforms) Lookup(name string) (Uniform, bool) {
	for _, v := range u {
		if v.Name == name {
			return v, true
		}
	}
	return Uniform{}, false
}

// Float returns a float uniform, or 0 if absent.
func (u Uniforms) Float(name string) float32 {
	v, _ := u.Lookup(name)
	return v.F[0]
}

// Vec2 returns a vec2 uniform, or (0, 0) if absent.
func (u Uniforms) Vec2(name string) (float32, float32) {
	v, _ := u.Lookup(name)
	return v.F[0], v.F[1]
}

// Int returns an int uniform, or 0 if absent.
func (u Uniforms) Int(name string) int32 {
	v, _ := u.Lookup(name)
	return v.I
}

// Clone returns a copy that does not alias u.
func (u Uniforms) Clone() Uniforms {
	if u == nil {
		return nil
	}
	out := make(Uniforms, len(u))
	copy(out, u)
	return out
}
