package knight

import (
	"fmt"
	"sort"
)

// Form says how the compiler lowers an operator.
type Form int

const (
	// FormDispatch operators compile their operands and emit OpDispatch.
	FormDispatch Form = iota
	// FormLiteral operators (TRUE, FALSE, NULL, @) compile to constants.
	FormLiteral
	// FormSpecial operators (BLOCK, CALL, =, &, |, ;, IF, WHILE) are lowered
	// to dedicated instructions and jumps.
	FormSpecial
)

func (f Form) String() string {
	return []string{"dispatch", "literal", "special"}[f]
}

type BuiltinFunc func(vm *VM, args []Value) (Value, error)

type Builtin struct {
	Name  string
	Key   string
	Arity int
	Form  Form
	// Lazy operands are compiled as blocks and handed to Fn unevaluated.
	Lazy bool
	// Binds lists variables the operator writes by name; the compiler
	// interns them wherever the operator appears.
	Binds     []string
	Extension bool
	Fn        BuiltinFunc
	Doc       *Doc
}

// DispatchTable maps operator keys to their arity and implementation. Its
// entry set is fixed when it is built from a Features value.
type DispatchTable struct {
	features Features
	entries  []*Builtin
	index    map[string]int
}

func NewDispatchTable(features Features) *DispatchTable {
	features = features.Resolve()
	t := &DispatchTable{
		features: features,
		index:    make(map[string]int),
	}
	for _, b := range coreBuiltins() {
		t.add(b)
	}
	if features.Extensions {
		for _, b := range extensionBuiltins() {
			t.add(b)
		}
	}
	if features.Compliance {
		for i, b := range t.entries {
			t.entries[i] = withCompliance(b)
		}
	}
	for _, b := range t.entries {
		if b.Doc == nil {
			b.Doc = BuiltinDocs[b.Key]
		}
	}
	return t
}

func (t *DispatchTable) add(b *Builtin) {
	t.index[b.Key] = len(t.entries)
	t.entries = append(t.entries, b)
}

func (t *DispatchTable) Features() Features {
	return t.features
}

func (t *DispatchTable) Lookup(key string) (*Builtin, bool) {
	i, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return t.entries[i], true
}

func (t *DispatchTable) Index(key string) (int, bool) {
	i, ok := t.index[key]
	return i, ok
}

func (t *DispatchTable) Entry(i int) *Builtin {
	if i < 0 || i >= len(t.entries) {
		return nil
	}
	return t.entries[i]
}

func (t *DispatchTable) Arity(key string) (int, bool) {
	b, ok := t.Lookup(key)
	if !ok {
		return 0, false
	}
	return b.Arity, true
}

// Entries returns the table sorted by key.
func (t *DispatchTable) Entries() []*Builtin {
	out := make([]*Builtin, len(t.entries))
	copy(out, t.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Register adds an extension operator. Keys already used by any
// configuration of the language are refused so a key never has two arities.
func (t *DispatchTable) Register(b *Builtin) error {
	if !t.features.Extensions {
		return fmt.Errorf("knight: cannot register %s: extensions are disabled", b.Name)
	}
	if b.Fn == nil {
		return fmt.Errorf("knight: cannot register %s: no implementation", b.Name)
	}
	if b.Arity < 0 || b.Arity > maxArity {
		return fmt.Errorf("knight: cannot register %s: arity %d out of range", b.Name, b.Arity)
	}
	if b.Key == "" {
		b.Key = OperatorKey(b.Name)
	}
	if b.Key != OperatorKey(b.Name) {
		return fmt.Errorf("knight: operator %s must use key %s", b.Name, OperatorKey(b.Name))
	}
	if !isOperatorWord(b.Name) {
		return fmt.Errorf("knight: %q is not an operator word", b.Name)
	}
	if _, taken := reservedKeys()[b.Key]; taken {
		return fmt.Errorf("knight: operator key %s is reserved", b.Key)
	}
	if _, taken := t.index[b.Key]; taken {
		return fmt.Errorf("knight: operator key %s is already registered", b.Key)
	}
	b.Form = FormDispatch
	b.Extension = true
	if t.features.Compliance {
		b = withCompliance(b)
	}
	t.add(b)
	return nil
}

const maxArity = 4

func isOperatorWord(name string) bool {
	if name == "" || !isUpper(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isUpper(name[i]) && name[i] != '_' {
			return false
		}
	}
	return true
}

// reservedKeys is every key used by the language in any configuration.
func reservedKeys() map[string]int {
	keys := make(map[string]int)
	for _, b := range coreBuiltins() {
		keys[b.Key] = b.Arity
	}
	for _, b := range extensionBuiltins() {
		keys[b.Key] = b.Arity
	}
	return keys
}
