package quadtree

import "math"

// stackDepth covers a depth-first walk of a MaxDepth tree: at most three
// pending siblings per level plus the four children of the deepest node.
const stackDepth = 128

// Aggregate returns the mass and center of mass of all points inside r.
// Subtrees fully inside r contribute their aggregate without being opened.
func (t *Tree) Aggregate(r Rect) (mass float64, com Point) {
	if t.Root() < 0 {
		return 0, Point{}
	}

	var sx, sy float64
	add := func(m, x, y float64) {
		mass += m
		sx += m * x
		sy += m * y
	}

	var stack [stackDepth]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		n := &t.nodes[stack[sp]]
		if n.Mass == 0 || !r.Intersects(n.Bounds) {
			continue
		}
		if r.Covers(n.Bounds) {
			add(n.Mass, n.CenterOfMass[0], n.CenterOfMass[1])
			continue
		}
		if n.Divided {
			for _, c := range n.Children {
				stack[sp] = c
				sp++
			}
			continue
		}

		for _, p := range n.Points[:n.Count] {
			if r.Contains(p.X, p.Y) {
				add(1, float64(p.X), float64(p.Y))
			}
		}
		// Overflow points are only known through the aggregate.
		if extra := n.Mass - float64(n.Count); extra > 0 {
			ox, oy := overflowCenter(n)
			if r.Contains(float32(ox), float32(oy)) {
				add(extra, ox, oy)
			}
		}
	}

	if mass == 0 {
		return 0, Point{}
	}
	return mass, Point{X: float32(sx / mass), Y: float32(sy / mass)}
}

// overflowCenter is the mean position of the points a leaf absorbed beyond
// its inline capacity.
func overflowCenter(n *Node) (float64, float64) {
	extra := n.Mass - float64(n.Count)
	sx := n.CenterOfMass[0] * n.Mass
	sy := n.CenterOfMass[1] * n.Mass
	for _, p := range n.Points[:n.Count] {
		sx -= float64(p.X)
		sy -= float64(p.Y)
	}
	return sx / extra, sy / extra
}

// Accumulate returns the Barnes-Hut approximation of the attractive field at
// p from every point in the tree, each of unit mass:
//
//	sum of m * (c - p) / max(|c - p|, minDist)^3
//
// A node whose size over distance is below theta is treated as a single mass
// at its center of mass. Nodes containing p are always opened. Points
// coincident with p contribute nothing. Safe for concurrent use once built.
func (t *Tree) Accumulate(p Point, theta, minDist float32) (fx, fy float32) {
	if t.Root() < 0 {
		return 0, 0
	}

	px, py := float64(p.X), float64(p.Y)
	th := float64(theta)
	md := float64(minDist)
	var ax, ay float64

	pull := func(m, cx, cy float64) {
		dx, dy := cx-px, cy-py
		d := math.Sqrt(dx*dx + dy*dy)
		if d == 0 {
			return
		}
		r := math.Max(d, md)
		s := m / (r * r * r)
		ax += dx * s
		ay += dy * s
	}

	var stack [stackDepth]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		n := &t.nodes[stack[sp]]
		if n.Mass == 0 {
			continue
		}

		if n.Divided {
			if !n.Bounds.Contains(p.X, p.Y) {
				dx := n.CenterOfMass[0] - px
				dy := n.CenterOfMass[1] - py
				d := math.Sqrt(dx*dx + dy*dy)
				size := float64(max(n.Bounds.Width(), n.Bounds.Height()))
				if d > 0 && size/d < th {
					pull(n.Mass, n.CenterOfMass[0], n.CenterOfMass[1])
					continue
				}
			}
			for _, c := range n.Children {
				stack[sp] = c
				sp++
			}
			continue
		}

		for _, q := range n.Points[:n.Count] {
			pull(1, float64(q.X), float64(q.Y))
		}
		if extra := n.Mass - float64(n.Count); extra > 0 {
			ox, oy := overflowCenter(n)
			pull(extra, ox, oy)
		}
	}
	return float32(ax), float32(ay)
}
