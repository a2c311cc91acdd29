package stream

// ObserverID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. The generation increments on removal so stale ids never
// address a reused slot.
type ObserverID uint64

func newObserverID(index, generation uint32) ObserverID {
	return ObserverID(uint64(generation)<<32 | uint64(index))
}

func (id ObserverID) Index() uint32      { return uint32(id) }
func (id ObserverID) Generation() uint32 { return uint32(id >> 32) }

// Observer is something that needs collision data around it, typically a
// player or a scripted walker.
type Observer struct {
	MapID  uint32
	X, Y   float32 // world coordinates
	Radius int     // tiles around the observer; negative uses the default

	removed bool
}

// observerSet allocates ids with a free list and defers slot reuse until
// the cleanup phase.
type observerSet struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
	live        map[ObserverID]*Observer
	removeQueue []ObserverID
}

func newObserverSet() *observerSet {
	return &observerSet{
		generations: make([]uint32, 0, 64),
		live:        make(map[ObserverID]*Observer, 64),
	}
}

func (s *observerSet) add(o Observer) ObserverID {
	var idx uint32
	if n := len(s.freeList); n > 0 {
		idx = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
	} else {
		idx = s.nextIndex
		s.nextIndex++
		s.generations = append(s.generations, 0)
	}
	id := newObserverID(idx, s.generations[idx])
	o.removed = false
	s.live[id] = &o
	return id
}

func (s *observerSet) get(id ObserverID) (*Observer, bool) {
	o, ok := s.live[id]
	if !ok || o.removed {
		return nil, false
	}
	return o, true
}

// markRemoved stops the observer from pinning tiles immediately; its slot is
// recycled by flush.
func (s *observerSet) markRemoved(id ObserverID) bool {
	o, ok := s.get(id)
	if !ok {
		return false
	}
	o.removed = true
	s.removeQueue = append(s.removeQueue, id)
	return true
}

func (s *observerSet) flush() int {
	n := len(s.removeQueue)
	for _, id := range s.removeQueue {
		delete(s.live, id)
		s.generations[id.Index()]++
		s.freeList = append(s.freeList, id.Index())
	}
	s.removeQueue = s.removeQueue[:0]
	return n
}

func (s *observerSet) each(fn func(ObserverID, *Observer)) {
	for id, o := range s.live {
		if !o.removed {
			fn(id, o)
		}
	}
}

func (s *observerSet) len() int {
	return len(s.live) - len(s.removeQueue)
}
