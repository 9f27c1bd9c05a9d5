package glcompute

import (
	"fmt"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/swarm/gpu"
)

// paletteBinding is the storage slot of the color lookup table. It follows
// the compute bindings so both programs can share one binding table.
const paletteBinding = 5

const pointVertexShader = `#version 430 core

layout(location = 0) in vec2 position;
layout(location = 1) in float speed;

layout(std430, binding = 5) readonly buffer ColorLUT {
    vec4 colors[];
};

uniform mat4 view;
uniform mat4 projection;
uniform float max_speed;
uniform float point_size;

out vec4 vColor;

void main() {
    gl_Position = projection * view * vec4(position, 0.0, 1.0);
    gl_PointSize = point_size;

    float t = clamp(speed / max_speed, 0.0, 1.0);
    int last = colors.length() - 1;
    vColor = colors[int(t * float(last) + 0.5)];
}
`

const pointFragmentShader = `#version 430 core

in vec4 vColor;
out vec4 FragColor;

void main() {
    FragColor = vColor;
}
`

// PointRenderer draws one point per particle with a single instanced call,
// reading positions and speeds straight from the compute buffers.
type PointRenderer struct {
	dev      *Device
	prog     *program
	vao      uint32
	palette  uint32
	maxSpeed float32
	size     float32
}

// NewPointRenderer builds the render program and uploads the palette
// (RGBA, four floats per entry). maxSpeed maps to the last palette entry.
func NewPointRenderer(d *Device, palette []float32, maxSpeed, pointSize float32) (*PointRenderer, error) {
	if len(palette) == 0 || len(palette)%4 != 0 {
		return nil, fmt.Errorf("palette has %d floats, want a non-empty multiple of 4", len(palette))
	}
	if maxSpeed <= 0 {
		maxSpeed = 1
	}
	if pointSize <= 0 {
		pointSize = 1
	}

	id, err := linkProgram("points",
		stage{gl.VERTEX_SHADER, pointVertexShader},
		stage{gl.FRAGMENT_SHADER, pointFragmentShader},
	)
	if err != nil {
		return nil, err
	}

	r := &PointRenderer{
		dev:      d,
		prog:     newProgram(nil, "points", id),
		maxSpeed: maxSpeed,
		size:     pointSize,
	}

	gl.GenVertexArrays(1, &r.vao)
	gl.GenBuffers(1, &r.palette)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, r.palette)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(palette)*4, gl.Ptr(palette), gl.STATIC_DRAW)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)

	gl.Enable(gl.PROGRAM_POINT_SIZE)
	return r, nil
}

// DrawInstanced draws count particles from positions (x,y pairs) and speeds.
func (r *PointRenderer) DrawInstanced(positions, speeds gpu.Buffer, count int, view, projection mgl32.Mat4) error {
	pos, err := r.dev.own(positions)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	spd, err := r.dev.own(speeds)
	if err != nil {
		return fmt.Errorf("speeds: %w", err)
	}
	if count <= 0 {
		return nil
	}

	gl.UseProgram(r.prog.id)
	gl.UniformMatrix4fv(r.prog.location("view"), 1, false, &view[0])
	gl.UniformMatrix4fv(r.prog.location("projection"), 1, false, &projection[0])
	gl.Uniform1f(r.prog.location("max_speed"), r.maxSpeed)
	gl.Uniform1f(r.prog.location("point_size"), r.size)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, paletteBinding, r.palette)

	gl.BindVertexArray(r.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, pos.id)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 0, 0)
	gl.VertexAttribDivisor(0, 1)

	gl.BindBuffer(gl.ARRAY_BUFFER, spd.id)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(1, 1, gl.FLOAT, false, 0, 0)
	gl.VertexAttribDivisor(1, 1)

	gl.DrawArraysInstanced(gl.POINTS, 0, 1, int32(count))

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return nil
}

// Unload releases GPU resources.
func (r *PointRenderer) Unload() {
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
		r.vao = 0
	}
	if r.palette != 0 {
		gl.DeleteBuffers(1, &r.palette)
		r.palette = 0
	}
	r.prog.Release()
}
