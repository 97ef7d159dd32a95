package knight

import "fmt"

// Environment is the single global namespace of a run: one slot per
// variable name in the program, indexed directly.
type Environment struct {
	slots    []Value
	assigned []bool
	symbols  *SymbolTable
	checked  bool
}

// NewEnvironment sizes a slot store for p. Every slot starts as Null; with
// check-variables the slots are additionally tracked as unset until written.
func NewEnvironment(p *Program) *Environment {
	env := &Environment{
		slots:   make([]Value, p.SlotCount),
		symbols: p.Symbols,
		checked: p.Features.CheckVariables,
	}
	if env.checked {
		env.assigned = make([]bool, p.SlotCount)
	}
	return env
}

func (e *Environment) Len() int {
	return len(e.slots)
}

func (e *Environment) Get(slot int) (Value, error) {
	if slot < 0 || slot >= len(e.slots) {
		return Null, NewFatalError(fmt.Sprintf("slot %d out of range for environment of %d", slot, len(e.slots)), Loc{})
	}
	if e.checked && !e.assigned[slot] {
		return Null, NewRuntimeError(KindUndefinedVariable, fmt.Sprintf("undefined variable %s", e.symbols.Name(slot)))
	}
	return e.slots[slot], nil
}

func (e *Environment) Set(slot int, v Value) error {
	if slot < 0 || slot >= len(e.slots) {
		return NewFatalError(fmt.Sprintf("slot %d out of range for environment of %d", slot, len(e.slots)), Loc{})
	}
	e.slots[slot] = v
	if e.checked {
		e.assigned[slot] = true
	}
	return nil
}

// Lookup reads a variable by name. The second result is false when the
// program never mentions the name or, with check-variables, never assigned it.
func (e *Environment) Lookup(name string) (Value, bool) {
	slot, ok := e.symbols.Lookup(name)
	if !ok || slot >= len(e.slots) {
		return Null, false
	}
	if e.checked && !e.assigned[slot] {
		return Null, false
	}
	return e.slots[slot], true
}

// Assign writes a variable by name. Names unknown to the program, or interned
// by a later compile the environment was not extended for, are ignored.
func (e *Environment) Assign(name string, v Value) bool {
	slot, ok := e.symbols.Lookup(name)
	if !ok || slot >= len(e.slots) {
		return false
	}
	e.slots[slot] = v
	if e.checked {
		e.assigned[slot] = true
	}
	return true
}

// Extend grows the environment for a later program compiled against the
// same symbol table. Existing values are kept.
func (e *Environment) Extend(p *Program) error {
	if p.Symbols != e.symbols {
		return fmt.Errorf("knight: program was compiled against a different symbol table")
	}
	for len(e.slots) < p.SlotCount {
		e.slots = append(e.slots, Null)
		if e.checked {
			e.assigned = append(e.assigned, false)
		}
	}
	return nil
}

// Export returns the assigned variables keyed by name.
func (e *Environment) Export() map[string]Value {
	out := make(map[string]Value, len(e.slots))
	for slot, v := range e.slots {
		if e.checked && !e.assigned[slot] {
			continue
		}
		out[e.symbols.Name(slot)] = v
	}
	return out
}
