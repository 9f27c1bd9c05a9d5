package gpu

import "math"

// Grid is a dispatch size in work groups.
type Grid struct {
	X, Y, Z uint32
}

// Count is the total number of work groups.
func (g Grid) Count() int {
	return int(g.X) * int(g.Y) * int(g.Z)
}

// FoldGrid maps count invocations onto a square 2-D grid of work groups,
// each covering localSize*localSize invocations. The grid edge is the
// smallest integer whose square is at least the required group count, which
// keeps both dimensions far below per-axis dispatch limits at very large
// counts. batch is the number of invocations per group.
func FoldGrid(count, localSize int) (grid Grid, batch int) {
	if localSize < 1 {
		localSize = 1
	}
	batch = localSize * localSize
	if count <= 0 {
		return Grid{X: 0, Y: 0, Z: 1}, batch
	}
	groups := (count + batch - 1) / batch
	side := int(math.Ceil(math.Sqrt(float64(groups))))
	// Guard against sqrt rounding on large counts.
	for side*side < groups {
		side++
	}
	for side > 1 && (side-1)*(side-1) >= groups {
		side--
	}
	return Grid{X: uint32(side), Y: uint32(side), Z: 1}, batch
}

// GroupRange returns the invocation range [start, end) covered by the
// linear work group index g, clipped to count.
func GroupRange(g, batch, count int) (start, end int) {
	start = g * batch
	if start > count {
		start = count
	}
	end = start + batch
	if end > count {
		end = count
	}
	return start, end
}
