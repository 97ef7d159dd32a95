package knight

// SymbolTable assigns each distinct variable name a stable slot, in the
// order names are first seen. It only grows.
type SymbolTable struct {
	slots map[string]int
	names []string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{slots: make(map[string]int)}
}

// Intern returns the slot for name, allocating the next one if the name is new.
func (s *SymbolTable) Intern(name string) int {
	if slot, ok := s.slots[name]; ok {
		return slot
	}
	slot := len(s.names)
	s.slots[name] = slot
	s.names = append(s.names, name)
	return slot
}

func (s *SymbolTable) Lookup(name string) (int, bool) {
	slot, ok := s.slots[name]
	return slot, ok
}

func (s *SymbolTable) SlotCount() int {
	return len(s.names)
}

func (s *SymbolTable) Name(slot int) string {
	if slot < 0 || slot >= len(s.names) {
		return ""
	}
	return s.names[slot]
}

// Names returns the interned names in first-seen order.
func (s *SymbolTable) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func symbolTableFromNames(names []string) *SymbolTable {
	s := NewSymbolTable()
	for _, n := range names {
		s.Intern(n)
	}
	return s
}

// truncate forgets every name interned after the first n.
func (s *SymbolTable) truncate(n int) {
	for _, name := range s.names[n:] {
		delete(s.slots, name)
	}
	s.names = s.names[:n]
}
