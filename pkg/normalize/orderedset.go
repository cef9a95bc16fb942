package normalize

// orderedSet remembers keys in first-insertion order.
type orderedSet struct {
	index map[string]int
	keys  []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]int)}
}

// Add inserts key and reports whether it was new.
func (s *orderedSet) Add(key string) bool {
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.keys)
	s.keys = append(s.keys, key)
	return true
}

func (s *orderedSet) Len() int {
	return len(s.keys)
}

// Keys returns the keys in insertion order.
func (s *orderedSet) Keys() []string {
	return append([]string(nil), s.keys...)
}
