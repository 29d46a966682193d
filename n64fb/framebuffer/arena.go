package framebuffer

// Handle is a weak reference into an arena. The zero Handle never resolves.
// A handle stops resolving once its entry is removed, even if the slot is
// reused.
type Handle struct {
	index uint32
	gen   uint32
}

// IsNil reports whether h is the zero handle.
func (h Handle) IsNil() bool {
	return h.gen == 0
}

type slot[T any] struct {
	gen   uint32
	value *T
}

// arena owns values of T and hands out generation-checked handles to them.
type arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func (a *arena[T]) insert(v *T) Handle {
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.gen++
		s.value = v
		return Handle{index: idx, gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{gen: 1, value: v})
	return Handle{index: uint32(len(a.slots) - 1), gen: 1}
}

func (a *arena[T]) get(h Handle) *T {
	if h.gen == 0 || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if s.gen != h.gen {
		return nil
	}
	return s.value
}

func (a *arena[T]) remove(h Handle) bool {
	if a.get(h) == nil {
		return false
	}
	s := &a.slots[h.index]
	s.value = nil
	// bump now so stale handles fail even before the slot is reused
	s.gen++
	a.free = append(a.free, h.index)
	a.live--
	return true
}

func (a *arena[T]) len() int {
	return a.live
}
