package gpu

import "time"

// FenceSlot owns at most one fence and guarantees it is released on every
// path: after a signalled wait, on replacement, and on Release.
//
// The zero value is an empty slot.
type FenceSlot struct {
	f Fence
}

// Pending reports whether the slot holds an unretired fence.
func (s *FenceSlot) Pending() bool {
	return s.f != nil
}

// Set stores f. It returns false and leaves the slot unchanged if a fence is
// still held; the caller must retire it with Wait first.
func (s *FenceSlot) Set(f Fence) bool {
	if s.f != nil {
		return false
	}
	s.f = f
	return true
}

// Wait waits on the held fence. An empty slot reports Signaled. A signalled
// fence is released and the slot emptied; a timed-out fence stays held.
func (s *FenceSlot) Wait(timeout time.Duration) WaitStatus {
	if s.f == nil {
		return Signaled
	}
	st := s.f.Wait(timeout)
	if st == Signaled {
		s.f.Release()
		s.f = nil
	}
	return st
}

// Release drops the held fence without waiting.
func (s *FenceSlot) Release() {
	if s.f != nil {
		s.f.Release()
		s.f = nil
	}
}

// WaitAndRelease waits on f and releases it regardless of the outcome.
func WaitAndRelease(f Fence, timeout time.Duration) WaitStatus {
	if f == nil {
		return Signaled
	}
	defer f.Release()
	return f.Wait(timeout)
}
