package runner

// Cloneable is satisfied by result types that can deep-copy themselves.
type Cloneable[T any] interface {
	Clone() T
}

// registryCapacity bounds the completed set; the oldest entries are evicted
// first. Retention pruning (pkg/cleanup) trims further by age.
const registryCapacity = 200

// Registry tracks active and completed result objects for one coordinator.
// All state is owned by a single goroutine; every operation flows through
// the command channel, and reads return deep copies, so callers never share
// mutable state with the coordinator's bookkeeping.
type Registry[T Cloneable[T]] struct {
	commands chan func(*registryState[T])
	quit     chan struct{}
}

type registryState[T Cloneable[T]] struct {
	active    map[string]T
	completed map[string]T
	order     []string // completion order, oldest first
}

// NewRegistry starts the registry goroutine.
func NewRegistry[T Cloneable[T]]() *Registry[T] {
	r := &Registry[T]{
		commands: make(chan func(*registryState[T])),
		quit:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Registry[T]) loop() {
	state := &registryState[T]{
		active:    make(map[string]T),
		completed: make(map[string]T),
	}
	for {
		select {
		case cmd := <-r.commands:
			cmd(state)
		case <-r.quit:
			return
		}
	}
}

// Stop terminates the registry goroutine. For process shutdown only; calls
// after Stop return without effect.
func (r *Registry[T]) Stop() {
	close(r.quit)
}

func (r *Registry[T]) do(fn func(*registryState[T])) {
	done := make(chan struct{})
	select {
	case r.commands <- func(s *registryState[T]) {
		fn(s)
		close(done)
	}:
		<-done
	case <-r.quit:
	}
}

// Register places a new active entry. Returns false when the id is taken.
func (r *Registry[T]) Register(id string, v T) bool {
	ok := false
	r.do(func(s *registryState[T]) {
		if _, dup := s.active[id]; dup {
			return
		}
		if _, dup := s.completed[id]; dup {
			return
		}
		s.active[id] = v
		ok = true
	})
	return ok
}

// Complete moves an entry from active to completed atomically, evicting the
// oldest completed entry past capacity.
func (r *Registry[T]) Complete(id string) {
	r.do(func(s *registryState[T]) {
		v, ok := s.active[id]
		if !ok {
			return
		}
		delete(s.active, id)
		s.completed[id] = v
		s.order = append(s.order, id)
		for len(s.order) > registryCapacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.completed, oldest)
		}
	})
}

// Mutate runs fn against the live active entry on the registry goroutine,
// serializing writes with snapshot reads. Returns false for unknown or
// completed ids: terminal entries are never mutated again.
func (r *Registry[T]) Mutate(id string, fn func(T)) bool {
	ok := false
	r.do(func(s *registryState[T]) {
		if v, found := s.active[id]; found {
			fn(v)
			ok = true
		}
	})
	return ok
}

// Get returns a deep copy of an entry, active or completed.
func (r *Registry[T]) Get(id string) (T, bool) {
	var out T
	found := false
	r.do(func(s *registryState[T]) {
		if v, ok := s.active[id]; ok {
			out, found = v.Clone(), true
			return
		}
		if v, ok := s.completed[id]; ok {
			out, found = v.Clone(), true
		}
	})
	return out, found
}

// Active returns deep copies of every active entry.
func (r *Registry[T]) Active() []T {
	var out []T
	r.do(func(s *registryState[T]) {
		for _, v := range s.active {
			out = append(out, v.Clone())
		}
	})
	return out
}

// Completed returns deep copies of every completed entry, newest first.
func (r *Registry[T]) Completed() []T {
	var out []T
	r.do(func(s *registryState[T]) {
		for i := len(s.order) - 1; i >= 0; i-- {
			if v, ok := s.completed[s.order[i]]; ok {
				out = append(out, v.Clone())
			}
		}
	})
	return out
}

// ActiveCount returns the number of active entries.
func (r *Registry[T]) ActiveCount() int {
	n := 0
	r.do(func(s *registryState[T]) { n = len(s.active) })
	return n
}

// PruneCompleted removes completed entries matching expired, keeping at
// least keep entries (newest first). Returns the number removed.
func (r *Registry[T]) PruneCompleted(keep int, expired func(T) bool) int {
	removed := 0
	r.do(func(s *registryState[T]) {
		if len(s.order) <= keep {
			return
		}
		cut := len(s.order) - keep
		kept := s.order[:0:0]
		for i, id := range s.order {
			v, ok := s.completed[id]
			if ok && i < cut && expired(v) {
				delete(s.completed, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		s.order = kept
	})
	return removed
}
