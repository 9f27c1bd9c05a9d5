// Package quadtree implements the region quadtree used to approximate
// far-field particle interactions.
//
// The tree lives in a flat arena of nodes addressed by int32 index and is
// rebuilt from scratch every tick. Build resets the arena without freeing it,
// so steady-state rebuilds do not allocate. Every node carries the aggregate
// mass (particle count) and center of mass of its subtree.
//
// Boundaries are half-open: a node spanning [MinX, MaxX) x [MinY, MaxY)
// contains a point on its lower edges and not on its upper edges. Children
// are cut at the parent's midlines, which are computed once and shared by the
// adjacent children, so the four children partition the parent exactly and a
// point on a midline always lands in the child on its upper side.
package quadtree

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Capacity is the number of points a leaf holds before it subdivides.
	Capacity = 4
	// MaxDepth bounds subdivision. A full leaf at MaxDepth stops splitting
	// and absorbs further points into its aggregate only, which keeps
	// coincident points from recursing forever.
	MaxDepth = 24
)

// Child slots. NW and NE hold the lower y half.
const (
	NW = iota
	NE
	SW
	SE
)

const noNode int32 = -1

var (
	ErrDegenerateBounds = errors.New("quadtree: degenerate bounds")
	ErrNotBuilt         = errors.New("quadtree: tree not built")
	ErrOddPositions     = errors.New("quadtree: positions must be x,y pairs")
)

// Point is a 2-D position.
type Point struct {
	X, Y float32
}

// Rect is a half-open axis-aligned rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float32
}

// Centered returns the width x height rectangle centered on the origin.
func Centered(width, height float32) Rect {
	return Rect{MinX: -width / 2, MinY: -height / 2, MaxX: width / 2, MaxY: height / 2}
}

func (r Rect) Width() float32  { return r.MaxX - r.MinX }
func (r Rect) Height() float32 { return r.MaxY - r.MinY }

// Contains reports whether (x, y) lies in r, lower edges inclusive.
func (r Rect) Contains(x, y float32) bool {
	return x >= r.MinX && x < r.MaxX && y >= r.MinY && y < r.MaxY
}

// Covers reports whether o lies entirely inside r.
func (r Rect) Covers(o Rect) bool {
	return o.MinX >= r.MinX && o.MaxX <= r.MaxX && o.MinY >= r.MinY && o.MaxY <= r.MaxY
}

// Intersects reports whether r and o share any point.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && o.MinX < r.MaxX && r.MinY < o.MaxY && o.MinY < r.MaxY
}

// Valid reports whether r has positive finite extent. Finite corners can
// still overflow float32 in Width or Height, which would collapse children.
func (r Rect) Valid() bool {
	for _, v := range [6]float32{r.MinX, r.MinY, r.MaxX, r.MaxY, r.Width(), r.Height()} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return r.Width() > 0 && r.Height() > 0
}

// quarter splits r at its midlines.
func (r Rect) quarter() [4]Rect {
	mx := midpoint(r.MinX, r.MaxX)
	my := midpoint(r.MinY, r.MaxY)
	return [4]Rect{
		NW: {MinX: r.MinX, MinY: r.MinY, MaxX: mx, MaxY: my},
		NE: {MinX: mx, MinY: r.MinY, MaxX: r.MaxX, MaxY: my},
		SW: {MinX: r.MinX, MinY: my, MaxX: mx, MaxY: r.MaxY},
		SE: {MinX: mx, MinY: my, MaxX: r.MaxX, MaxY: r.MaxY},
	}
}

func midpoint(lo, hi float32) float32 {
	m := lo + (hi-lo)*0.5
	if m < lo {
		return lo
	}
	if m > hi {
		return hi
	}
	return m
}

// Node is one quadtree cell.
//
// A leaf holds up to Capacity points inline and no children. An internal
// node holds no points and four children that partition its bounds.
type Node struct {
	Bounds   Rect
	Points   [Capacity]Point
	Count    int32
	Divided  bool
	Children [4]int32
	Depth    int32

	// Mass is the number of points in the subtree; CenterOfMass is their
	// mean position.
	Mass         float64
	CenterOfMass [2]float64
}

// Leaf reports whether n has no children.
func (n *Node) Leaf() bool { return !n.Divided }

// accumulate folds p into the running aggregate.
func (n *Node) accumulate(p Point) {
	m := n.Mass + 1
	n.CenterOfMass[0] = (n.CenterOfMass[0]*n.Mass + float64(p.X)) / m
	n.CenterOfMass[1] = (n.CenterOfMass[1]*n.Mass + float64(p.Y)) / m
	n.Mass = m
}

// Tree is an arena-backed region quadtree.
type Tree struct {
	nodes    []Node
	bounds   Rect
	built    bool
	dropped  int
	overflow int
}

// New returns an empty tree. capacityHint is the expected number of points
// and only sizes the arena.
func New(capacityHint int) *Tree {
	if capacityHint < 0 {
		capacityHint = 0
	}
	// Roughly one node per two points for uniform inputs.
	return &Tree{nodes: make([]Node, 0, capacityHint/2+1)}
}

// Build discards the current tree and inserts every x,y pair of positions
// into a root spanning bounds. Points outside bounds are counted by Dropped.
func (t *Tree) Build(positions []float32, bounds Rect) error {
	if !bounds.Valid() {
		return fmt.Errorf("%w: %+v", ErrDegenerateBounds, bounds)
	}
	if len(positions)%2 != 0 {
		return fmt.Errorf("%w: got %d values", ErrOddPositions, len(positions))
	}

	t.reset(bounds)
	for i := 0; i < len(positions); i += 2 {
		if !t.Insert(0, Point{X: positions[i], Y: positions[i+1]}) {
			t.dropped++
		}
	}
	return nil
}

// Update rebuilds the tree over the bounds of the last Build.
func (t *Tree) Update(positions []float32) error {
	if !t.built {
		return ErrNotBuilt
	}
	return t.Build(positions, t.bounds)
}

// Cleanup releases the arena. The tree must be built again before use.
func (t *Tree) Cleanup() {
	t.nodes = nil
	t.built = false
	t.dropped = 0
	t.overflow = 0
}

func (t *Tree) reset(bounds Rect) {
	t.nodes = t.nodes[:0]
	t.bounds = bounds
	t.built = true
	t.dropped = 0
	t.overflow = 0
	t.newNode(bounds, 0)
}

func (t *Tree) newNode(bounds Rect, depth int32) int32 {
	t.nodes = append(t.nodes, Node{
		Bounds:   bounds,
		Depth:    depth,
		Children: [4]int32{noNode, noNode, noNode, noNode},
	})
	return int32(len(t.nodes) - 1)
}

// Insert adds p below node. It returns false without side effects when p
// lies outside the node's bounds. Aggregates are updated from node down;
// inserting below a node other than the root leaves its ancestors' aggregates
// unchanged.
func (t *Tree) Insert(node int32, p Point) bool {
	if node < 0 || int(node) >= len(t.nodes) {
		return false
	}
	n := &t.nodes[node]
	if !n.Bounds.Contains(p.X, p.Y) {
		return false
	}
	n.accumulate(p)

	if !n.Divided {
		if n.Count < Capacity {
			n.Points[n.Count] = p
			n.Count++
			return true
		}
		if n.Depth >= MaxDepth {
			t.overflow++
			return true
		}

		t.subdivide(node)
		n = &t.nodes[node]
		held, count := n.Points, n.Count
		n.Points = [Capacity]Point{}
		n.Count = 0
		for _, q := range held[:count] {
			t.insertChildren(node, q)
		}
	}
	return t.insertChildren(node, p)
}

// insertChildren offers p to every child; exactly one accepts it.
func (t *Tree) insertChildren(node int32, p Point) bool {
	children := t.nodes[node].Children
	for _, c := range children {
		if t.Insert(c, p) {
			return true
		}
	}
	return false
}

func (t *Tree) subdivide(node int32) {
	parent := t.nodes[node]
	quads := parent.Bounds.quarter()
	var children [4]int32
	for i, q := range quads {
		children[i] = t.newNode(q, parent.Depth+1)
	}
	// newNode may have moved the arena.
	t.nodes[node].Children = children
	t.nodes[node].Divided = true
}

// Root returns the root index, or -1 before the first Build.
func (t *Tree) Root() int32 {
	if !t.built || len(t.nodes) == 0 {
		return noNode
	}
	return 0
}

// Node returns node i. The pointer is valid until the next Build.
func (t *Tree) Node(i int32) *Node {
	if i < 0 || int(i) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[i]
}

// Len is the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Bounds is the root boundary of the last Build.
func (t *Tree) Bounds() Rect { return t.bounds }

// Count is the number of points in the tree.
func (t *Tree) Count() int {
	if t.Root() < 0 {
		return 0
	}
	return int(t.nodes[0].Mass)
}

// Dropped is the number of points of the last Build outside the root.
func (t *Tree) Dropped() int { return t.dropped }

// Overflow is the number of points absorbed by full leaves at MaxDepth.
func (t *Tree) Overflow() int { return t.overflow }

// Walk visits nodes depth-first, parents before children, in NW, NE, SW, SE
// order. Returning false from fn skips the node's subtree. fn must not modify
// the node.
func (t *Tree) Walk(fn func(i int32, n *Node) bool) {
	if t.Root() < 0 {
		return
	}
	t.walk(0, fn)
}

func (t *Tree) walk(i int32, fn func(int32, *Node) bool) {
	n := &t.nodes[i]
	if !fn(i, n) || !n.Divided {
		return
	}
	for _, c := range n.Children {
		t.walk(c, fn)
	}
}
