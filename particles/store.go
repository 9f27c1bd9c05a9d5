// Package particles seeds the particle population and owns the buffer sets
// holding it on the device.
package particles

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/pthm-cable/swarm/gpu"
	"github.com/pthm-cable/swarm/quadtree"
	"github.com/pthm-cable/swarm/ring"
)

// MaxParticles is the largest population a store will allocate.
const MaxParticles = 62_000_000

// DefaultSeed replaces a zero seed, which would lock xorshift at zero.
const DefaultSeed uint32 = 0xCAFEBABE

var (
	ErrTooManyParticles = errors.New("particles: population exceeds maximum")
	ErrInvalidCount     = errors.New("particles: count must be positive")
	ErrInvalidBounds    = errors.New("particles: bounds must have positive finite size")
)

// Bounds is a rectangle centered on the origin.
type Bounds struct {
	Width, Height float32
}

// Valid reports whether b has positive finite extent.
func (b Bounds) Valid() bool {
	return b.Width > 0 && b.Height > 0 &&
		!math.IsInf(float64(b.Width), 0) && !math.IsInf(float64(b.Height), 0)
}

// Rect returns b as a half-open rectangle.
func (b Bounds) Rect() quadtree.Rect {
	return quadtree.Centered(b.Width, b.Height)
}

// Rand is a xorshift32 stream.
type Rand struct {
	state uint32
}

// NewRand returns a stream for seed; zero is replaced with DefaultSeed.
func NewRand(seed uint32) *Rand {
	if seed == 0 {
		seed = DefaultSeed
	}
	return &Rand{state: seed}
}

// Uint32 advances the stream.
func (r *Rand) Uint32() uint32 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// Float32 returns a value in [0, 1) built from the top 24 bits.
func (r *Rand) Float32() float32 {
	return float32(r.Uint32()>>8) / (1 << 24)
}

func checkSeed(count int, b Bounds, max int) error {
	if count <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	if count > max {
		return fmt.Errorf("%w: %d > %d", ErrTooManyParticles, count, max)
	}
	if !b.Valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidBounds, b)
	}
	return nil
}

// place maps u in [0,1) onto [lo, lo+span), keeping the upper edge open
// against float32 rounding.
func place(u, lo, span float32) float32 {
	v := lo + float32(u*span)
	if hi := lo + span; v >= hi {
		v = math.Nextafter32(hi, float32(math.Inf(-1)))
	}
	return v
}

// Seed returns count positions (x,y pairs) drawn uniformly over b and count
// zero velocities. Each particle draws x then y from one xorshift32 stream.
func Seed(count int, b Bounds, seed uint32) (positions, velocities []float32, err error) {
	if err := checkSeed(count, b, MaxParticles); err != nil {
		return nil, nil, err
	}

	positions = make([]float32, 2*count)
	velocities = make([]float32, 2*count)

	rng := NewRand(seed)
	minX, minY := -b.Width/2, -b.Height/2
	for i := 0; i < count; i++ {
		positions[2*i] = place(rng.Float32(), minX, b.Width)
		positions[2*i+1] = place(rng.Float32(), minY, b.Height)
	}
	return positions, velocities, nil
}

// bulkBlock is the number of particles SeedBulk transforms per pass.
const bulkBlock = 1024

// SeedBulk is Seed with the scale-and-offset done a block at a time through
// BLAS. It consumes the same stream in the same order and produces the same
// values bit for bit.
func SeedBulk(count int, b Bounds, seed uint32) (positions, velocities []float32, err error) {
	if err := checkSeed(count, b, MaxParticles); err != nil {
		return nil, nil, err
	}

	positions = make([]float32, 2*count)
	velocities = make([]float32, 2*count)

	rng := NewRand(seed)
	minX, minY := -b.Width/2, -b.Height/2
	maxX := math.Nextafter32(minX+b.Width, float32(math.Inf(-1)))
	maxY := math.Nextafter32(minY+b.Height, float32(math.Inf(-1)))

	xs := make([]float32, bulkBlock)
	ys := make([]float32, bulkBlock)
	ones := make([]float32, bulkBlock)
	for i := range ones {
		ones[i] = 1
	}

	for start := 0; start < count; start += bulkBlock {
		n := min(bulkBlock, count-start)
		for j := 0; j < n; j++ {
			xs[j] = rng.Float32()
			ys[j] = rng.Float32()
		}

		vx := blas32.Vector{N: n, Inc: 1, Data: xs}
		vy := blas32.Vector{N: n, Inc: 1, Data: ys}
		one := blas32.Vector{N: n, Inc: 1, Data: ones}
		blas32.Scal(b.Width, vx)
		blas32.Scal(b.Height, vy)
		blas32.Axpy(minX, one, vx)
		blas32.Axpy(minY, one, vy)

		out := positions[2*start : 2*(start+n)]
		for j := 0; j < n; j++ {
			out[2*j] = min(xs[j], maxX)
			out[2*j+1] = min(ys[j], maxY)
		}
	}
	return positions, velocities, nil
}

// Options configures a Store.
type Options struct {
	Count  int
	Bounds Bounds
	Seed   uint32
	// Sets is the number of buffer sets to create (2 or 3).
	Sets int
	// Max caps Count (0 = MaxParticles).
	Max int
	// Bulk selects SeedBulk.
	Bulk   bool
	Logger *slog.Logger
}

// Store holds the seeded population and the buffer sets it was uploaded to.
type Store struct {
	count   int
	bounds  Bounds
	initial []float32
	sets    []*ring.BufferSet
}

// NewStore seeds the population and uploads identical contents to opts.Sets
// buffer sets on dev. On any failure every buffer created so far is released.
func NewStore(dev gpu.Device, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Max
	if limit <= 0 || limit > MaxParticles {
		limit = MaxParticles
	}
	if err := checkSeed(opts.Count, opts.Bounds, limit); err != nil {
		return nil, err
	}
	if opts.Sets != 2 && opts.Sets != 3 {
		return nil, fmt.Errorf("%w: got %d", ring.ErrRingSize, opts.Sets)
	}

	seed := Seed
	if opts.Bulk {
		seed = SeedBulk
	}
	positions, velocities, err := seed(opts.Count, opts.Bounds, opts.Seed)
	if err != nil {
		return nil, err
	}

	s := &Store{count: opts.Count, bounds: opts.Bounds, initial: positions}
	speeds := make([]float32, opts.Count)
	for i := 0; i < opts.Sets; i++ {
		set, err := newSet(dev, i, positions, velocities, speeds)
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("buffer set %d: %w", i, err)
		}
		s.sets = append(s.sets, set)
	}

	logger.Info("particles seeded",
		"count", opts.Count,
		"width", opts.Bounds.Width,
		"height", opts.Bounds.Height,
		"sets", opts.Sets,
		"bulk", opts.Bulk,
	)
	return s, nil
}

func newSet(dev gpu.Device, id int, positions, velocities, speeds []float32) (*ring.BufferSet, error) {
	set := &ring.BufferSet{ID: id}
	fail := func(err error) (*ring.BufferSet, error) {
		set.Release()
		return nil, err
	}

	var err error
	if set.Positions, err = dev.NewBuffer(fmt.Sprintf("positions[%d]", id), len(positions)); err != nil {
		return fail(err)
	}
	if set.Velocities, err = dev.NewBuffer(fmt.Sprintf("velocities[%d]", id), len(velocities)); err != nil {
		return fail(err)
	}
	if set.Speeds, err = dev.NewBuffer(fmt.Sprintf("speeds[%d]", id), len(speeds)); err != nil {
		return fail(err)
	}

	if err := dev.Write(set.Positions, positions); err != nil {
		return fail(err)
	}
	if err := dev.Write(set.Velocities, velocities); err != nil {
		return fail(err)
	}
	if err := dev.Write(set.Speeds, speeds); err != nil {
		return fail(err)
	}
	return set, nil
}

// Count is the population size.
func (s *Store) Count() int { return s.count }

// Bounds is the seeding rectangle.
func (s *Store) Bounds() Bounds { return s.bounds }

// InitialPositions returns the seeded positions. Callers must not modify it.
func (s *Store) InitialPositions() []float32 { return s.initial }

// Sets returns the buffer sets. Ownership passes to whoever builds a ring
// over them; Release is then no longer needed on the store.
func (s *Store) Sets() []*ring.BufferSet { return s.sets }

// Release frees every buffer set.
func (s *Store) Release() {
	for _, set := range s.sets {
		set.Release()
	}
	s.sets = nil
}
