package sim

import "sync"

// Params are the tunables read by the force pass. A snapshot is taken once
// per tick and stays fixed for the whole tick.
type Params struct {
	ForceScale         float32
	MinDistance        float32
	MaxForce           float32
	Damping            float32
	TerminalVelocity   float32
	MouseForceRadius   float32
	MouseForceStrength float32
	GravityX, GravityY float32
	TimeScale          float32
	AttractionStrength float32

	// Theta is the Barnes-Hut opening angle; FarField enables the
	// quadtree pass on devices whose buffers are host visible.
	Theta    float32
	FarField bool
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		ForceScale:         150,
		MinDistance:        0.0001,
		MaxForce:           200,
		Damping:            0.9,
		TerminalVelocity:   100,
		MouseForceRadius:   5,
		MouseForceStrength: 1,
		TimeScale:          0.1,
		AttractionStrength: 1,
		Theta:              0.7,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNegative(v float32) float32 {
	if v < 0 {
		return 0
	}
	return v
}

// ParamStore is the shared parameter block between the control surface and
// the stepper. Writers may run on any goroutine; the last write before a
// tick's snapshot wins.
type ParamStore struct {
	mu sync.RWMutex
	p  Params
}

// NewParamStore returns a store holding p.
func NewParamStore(p Params) *ParamStore {
	p.Damping = clamp01(p.Damping)
	return &ParamStore{p: p}
}

// Snapshot returns a copy of the current parameters.
func (s *ParamStore) Snapshot() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// Replace swaps in a whole parameter block.
func (s *ParamStore) Replace(p Params) {
	p.Damping = clamp01(p.Damping)
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *ParamStore) get(f func(*Params) float32) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return f(&s.p)
}

func (s *ParamStore) set(f func(*Params)) {
	s.mu.Lock()
	f(&s.p)
	s.mu.Unlock()
}

func (s *ParamStore) ForceScale() float32 {
	return s.get(func(p *Params) float32 { return p.ForceScale })
}
func (s *ParamStore) SetForceScale(v float32) {
	s.set(func(p *Params) { p.ForceScale = v })
}

func (s *ParamStore) MinDistance() float32 {
	return s.get(func(p *Params) float32 { return p.MinDistance })
}

// SetMinDistance sets the softening distance. Non-positive values are
// ignored since they would reintroduce the singularity.
func (s *ParamStore) SetMinDistance(v float32) {
	if v <= 0 {
		return
	}
	s.set(func(p *Params) { p.MinDistance = v })
}

func (s *ParamStore) MaxForce() float32 {
	return s.get(func(p *Params) float32 { return p.MaxForce })
}
func (s *ParamStore) SetMaxForce(v float32) {
	s.set(func(p *Params) { p.MaxForce = nonNegative(v) })
}

func (s *ParamStore) Damping() float32 {
	return s.get(func(p *Params) float32 { return p.Damping })
}

// SetDamping sets the per-tick velocity retention, clamped to [0, 1].
func (s *ParamStore) SetDamping(v float32) {
	s.set(func(p *Params) { p.Damping = clamp01(v) })
}

func (s *ParamStore) TerminalVelocity() float32 {
	return s.get(func(p *Params) float32 { return p.TerminalVelocity })
}
func (s *ParamStore) SetTerminalVelocity(v float32) {
	s.set(func(p *Params) { p.TerminalVelocity = nonNegative(v) })
}

func (s *ParamStore) MouseForceRadius() float32 {
	return s.get(func(p *Params) float32 { return p.MouseForceRadius })
}
func (s *ParamStore) SetMouseForceRadius(v float32) {
	s.set(func(p *Params) { p.MouseForceRadius = nonNegative(v) })
}

func (s *ParamStore) MouseForceStrength() float32 {
	return s.get(func(p *Params) float32 { return p.MouseForceStrength })
}
func (s *ParamStore) SetMouseForceStrength(v float32) {
	s.set(func(p *Params) { p.MouseForceStrength = v })
}

// GravityPoint is the interaction point particles are drawn to.
func (s *ParamStore) GravityPoint() (x, y float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.GravityX, s.p.GravityY
}
func (s *ParamStore) SetGravityPoint(x, y float32) {
	s.set(func(p *Params) { p.GravityX, p.GravityY = x, y })
}

func (s *ParamStore) TimeScale() float32 {
	return s.get(func(p *Params) float32 { return p.TimeScale })
}
func (s *ParamStore) SetTimeScale(v float32) {
	s.set(func(p *Params) { p.TimeScale = nonNegative(v) })
}

func (s *ParamStore) AttractionStrength() float32 {
	return s.get(func(p *Params) float32 { return p.AttractionStrength })
}
func (s *ParamStore) SetAttractionStrength(v float32) {
	s.set(func(p *Params) { p.AttractionStrength = v })
}

func (s *ParamStore) Theta() float32 {
	return s.get(func(p *Params) float32 { return p.Theta })
}
func (s *ParamStore) SetTheta(v float32) {
	s.set(func(p *Params) { p.Theta = nonNegative(v) })
}

func (s *ParamStore) FarField() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.FarField
}
func (s *ParamStore) SetFarField(on bool) {
	s.set(func(p *Params) { p.FarField = on })
}
