package glcompute

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/pthm-cable/swarm/gpu"
)

type stage struct {
	kind   uint32
	source string
}

func stageName(kind uint32) string {
	switch kind {
	case gl.COMPUTE_SHADER:
		return "compute"
	case gl.VERTEX_SHADER:
		return "vertex"
	case gl.FRAGMENT_SHADER:
		return "fragment"
	default:
		return fmt.Sprintf("stage 0x%x", kind)
	}
}

// linkProgram compiles and links stages into a program. Failures wrap
// gpu.ErrShaderBuild and carry the driver's info log.
func linkProgram(name string, stages ...stage) (uint32, error) {
	prog := gl.CreateProgram()

	shaders := make([]uint32, 0, len(stages))
	defer func() {
		for _, s := range shaders {
			gl.DeleteShader(s)
		}
	}()

	for _, st := range stages {
		s, err := compileShader(st)
		if err != nil {
			gl.DeleteProgram(prog)
			return 0, fmt.Errorf("%w: %s: %w", gpu.ErrShaderBuild, name, err)
		}
		gl.AttachShader(prog, s)
		shaders = append(shaders, s)
	}

	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLength)
		log := infoLog(logLength, func(buf *uint8) { gl.GetProgramInfoLog(prog, logLength, nil, buf) })
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("%w: %s: link: %s", gpu.ErrShaderBuild, name, log)
	}
	return prog, nil
}

func compileShader(st stage) (uint32, error) {
	shader := gl.CreateShader(st.kind)
	csources, free := gl.Strs(st.source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := infoLog(logLength, func(buf *uint8) { gl.GetShaderInfoLog(shader, logLength, nil, buf) })
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%s: %s", stageName(st.kind), log)
	}
	return shader, nil
}

// infoLog reads a driver log of n bytes (including the terminator).
func infoLog(n int32, read func(*uint8)) string {
	if n <= 1 {
		return "(no info log)"
	}
	buf := make([]uint8, n)
	read(&buf[0])
	return trimLog(string(buf))
}

func trimLog(s string) string {
	return strings.TrimRight(s, "\x00 \r\n")
}

// program is a linked GL program with cached uniform locations.
type program struct {
	dev  *Device
	id   uint32
	name string
	locs map[string]int32
}

func newProgram(d *Device, name string, id uint32) *program {
	return &program{dev: d, id: id, name: name, locs: make(map[string]int32)}
}

func (p *program) Name() string { return p.name }

func (p *program) Release() {
	if p.id == 0 {
		return
	}
	if p.dev != nil {
		delete(p.dev.programs, p.id)
	}
	gl.DeleteProgram(p.id)
	p.id = 0
}

// location returns the uniform location of name, -1 if the program does not
// use it. Lookups hit the driver once per name.
func (p *program) location(name string) int32 {
	if loc, ok := p.locs[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.locs[name] = loc
	return loc
}

// apply sets uniforms on the program, which must be in use. Uniforms the
// shader optimised away are skipped.
func (p *program) apply(u gpu.Uniforms) {
	for _, v := range u {
		loc := p.location(v.Name)
		if loc < 0 {
			continue
		}
		switch v.Kind {
		case gpu.UniformFloat:
			gl.Uniform1f(loc, v.F[0])
		case gpu.UniformVec2:
			gl.Uniform2f(loc, v.F[0], v.F[1])
		case gpu.UniformInt:
			gl.Uniform1i(loc, v.I)
		}
	}
}
