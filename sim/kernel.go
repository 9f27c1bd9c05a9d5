package sim

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/quadtree"
)

//go:embed shaders/particle.comp
var particleShader string

// Storage bindings of the force pass.
const (
	BindInPositions = iota
	BindInVelocities
	BindOutPositions
	BindOutVelocities
	BindSpeeds
)

// Uniform names shared by the host kernel and the GLSL kernel.
const (
	UniformDeltaTime          = "delta_time"
	UniformNumParticles       = "num_particles"
	UniformBatchSize          = "batch_size"
	UniformMinDistance        = "min_distance"
	UniformForceScale         = "force_scale"
	UniformMaxForce           = "max_force"
	UniformTerminalVelocity   = "terminal_velocity"
	UniformDamping            = "damping"
	UniformGravityPoint       = "gravity_point"
	UniformGravityRadius      = "gravity_radius"
	UniformGravityStrength    = "gravity_strength"
	UniformAttractionStrength = "attraction_strength"
	UniformTimeScale          = "time_scale"
)

// DefaultLocalSize is the work group edge; a group covers 32x32 particles.
const DefaultLocalSize = 32

// ForceProgram describes the force pass for every backend.
func ForceProgram(localSize int) gpu.ProgramSource {
	if localSize < 1 {
		localSize = DefaultLocalSize
	}
	return gpu.ProgramSource{
		Name:      "particle_force",
		GLSL:      fmt.Sprintf("#version 430 core\n#define LOCAL_SIZE %d\n", localSize) + particleShader,
		Host:      forceKernel,
		LocalSize: localSize,
	}
}

// Uniforms encodes one tick's inputs.
func Uniforms(p Params, dt float32, count, batch int) gpu.Uniforms {
	return gpu.Uniforms{
		gpu.Float(UniformDeltaTime, dt),
		gpu.Int(UniformNumParticles, int32(count)),
		gpu.Int(UniformBatchSize, int32(batch)),
		gpu.Float(UniformMinDistance, p.MinDistance),
		gpu.Float(UniformForceScale, p.ForceScale),
		gpu.Float(UniformMaxForce, p.MaxForce),
		gpu.Float(UniformTerminalVelocity, p.TerminalVelocity),
		gpu.Float(UniformDamping, p.Damping),
		gpu.Vec2(UniformGravityPoint, p.GravityX, p.GravityY),
		gpu.Float(UniformGravityRadius, p.MouseForceRadius),
		gpu.Float(UniformGravityStrength, p.MouseForceStrength),
		gpu.Float(UniformAttractionStrength, p.AttractionStrength),
		gpu.Float(UniformTimeScale, p.TimeScale),
	}
}

// paramsFrom decodes Uniforms.
func paramsFrom(u gpu.Uniforms) (p Params, dt float32, count int) {
	p.GravityX, p.GravityY = u.Vec2(UniformGravityPoint)
	p.MinDistance = u.Float(UniformMinDistance)
	p.ForceScale = u.Float(UniformForceScale)
	p.MaxForce = u.Float(UniformMaxForce)
	p.TerminalVelocity = u.Float(UniformTerminalVelocity)
	p.Damping = u.Float(UniformDamping)
	p.MouseForceRadius = u.Float(UniformGravityRadius)
	p.MouseForceStrength = u.Float(UniformGravityStrength)
	p.AttractionStrength = u.Float(UniformAttractionStrength)
	p.TimeScale = u.Float(UniformTimeScale)
	return p, u.Float(UniformDeltaTime), int(u.Int(UniformNumParticles))
}

// FarField is the host-side input of the force pass when the quadtree
// approximation is enabled.
type FarField struct {
	Tree  *quadtree.Tree
	Theta float32
}

func length(x, y float32) float32 {
	return float32(math.Sqrt(float64(x*x + y*y)))
}

// clampLength scales (x, y) down to at most limit.
func clampLength(x, y, limit float32) (float32, float32) {
	l := length(x, y)
	if l > limit && l > 0 {
		s := limit / l
		return x * s, y * s
	}
	return x, y
}

// Force returns the clamped force on a particle at (x, y). farX and farY
// are the unscaled far-field sum from the quadtree, zero when disabled.
//
// The attraction to the gravity point falls off as 1/r^2 with r floored at
// MinDistance. Inside MouseForceRadius an extra pull fades linearly to zero
// at the radius. The sum is clamped to MaxForce.
func Force(x, y float32, p *Params, farX, farY float32) (fx, fy float32) {
	dx, dy := p.GravityX-x, p.GravityY-y
	d := length(dx, dy)
	if d > 0 {
		ux, uy := dx/d, dy/d
		r := max(d, p.MinDistance)
		s := p.ForceScale * p.AttractionStrength / (r * r)
		fx, fy = ux*s, uy*s
		if d < p.MouseForceRadius {
			m := p.ForceScale * p.MouseForceStrength * (1 - d/p.MouseForceRadius)
			fx += ux * m
			fy += uy * m
		}
	}
	fx += p.ForceScale * farX
	fy += p.ForceScale * farY
	return clampLength(fx, fy, p.MaxForce)
}

// Integrate advances one particle by dt under force (fx, fy). The whole
// velocity change, damping loss plus acceleration, is scaled by TimeScale
// before the TerminalVelocity clamp, as is the displacement. TimeScale 0
// freezes the particle.
func Integrate(x, y, vx, vy, fx, fy, dt float32, p *Params) (nx, ny, nvx, nvy, speed float32) {
	step := dt * p.TimeScale
	loss := p.Damping - 1
	nvx = vx + p.TimeScale*(vx*loss+fx*dt)
	nvy = vy + p.TimeScale*(vy*loss+fy*dt)
	nvx, nvy = clampLength(nvx, nvy, p.TerminalVelocity)
	nx = x + nvx*step
	ny = y + nvy*step
	return nx, ny, nvx, nvy, length(nvx, nvy)
}

// forceKernel is the host implementation of the force pass.
func forceKernel(start, end int, args *gpu.KernelArgs) {
	p, dt, count := paramsFrom(args.Uniforms)
	if end > count {
		end = count
	}
	if start >= end {
		return
	}

	inPos := args.Buffers[BindInPositions]
	inVel := args.Buffers[BindInVelocities]
	outPos := args.Buffers[BindOutPositions]
	outVel := args.Buffers[BindOutVelocities]
	speeds := args.Buffers[BindSpeeds]

	far, _ := args.Aux.(*FarField)
	if far != nil && far.Tree == nil {
		far = nil
	}

	for i := start; i < end; i++ {
		x, y := inPos[2*i], inPos[2*i+1]
		var gx, gy float32
		if far != nil {
			gx, gy = far.Tree.Accumulate(quadtree.Point{X: x, Y: y}, far.Theta, p.MinDistance)
		}
		fx, fy := Force(x, y, &p, gx, gy)
		nx, ny, nvx, nvy, s := Integrate(x, y, inVel[2*i], inVel[2*i+1], fx, fy, dt, &p)
		outPos[2*i], outPos[2*i+1] = nx, ny
		outVel[2*i], outVel[2*i+1] = nvx, nvy
		speeds[i] = s
	}
}
