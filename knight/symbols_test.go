package knight

import "testing"

func TestSlotsFollowFirstUse(t *testing.T) {
	p := compile(t, "; = b 1 ; = a 2 ; = b + a b c", Features{})
	want := []string{"b", "a", "c"}
	names := p.Symbols.Names()
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("names = %v, want %v", names, want)
		}
		if slot, _ := p.Symbols.Lookup(name); slot != i {
			t.Errorf("%s in slot %d, want %d", name, slot, i)
		}
	}
	if p.SlotCount != 3 {
		t.Fatalf("slot count = %d, want 3", p.SlotCount)
	}
}

func TestInternIsStable(t *testing.T) {
	s := NewSymbolTable()
	a := s.Intern("a")
	s.Intern("b")
	if again := s.Intern("a"); again != a {
		t.Fatalf("a moved from %d to %d", a, again)
	}
	if s.SlotCount() != 2 {
		t.Fatalf("slot count = %d, want 2", s.SlotCount())
	}
	names := s.Names()
	names[0] = "mutated"
	if s.Name(0) != "a" {
		t.Fatalf("Names exposed internal storage")
	}
	if s.Name(5) != "" {
		t.Fatalf("Name of a missing slot = %q", s.Name(5))
	}
}

func TestSharedCompilerExtendsSlots(t *testing.T) {
	c := NewCompiler(NewDispatchTable(Features{}))
	p1, err := CompileSource(c, "1.kn", "= x 1")
	if err != nil {
		t.Fatal(err)
	}
	env := NewEnvironment(p1)
	p2, err := CompileSource(c, "2.kn", "; = y x x")
	if err != nil {
		t.Fatal(err)
	}
	if p1.Symbols != p2.Symbols {
		t.Fatalf("programs from one compiler use different symbol tables")
	}
	if p1.SlotCount != 1 || p2.SlotCount != 2 {
		t.Fatalf("slot counts = %d, %d, want 1, 2", p1.SlotCount, p2.SlotCount)
	}
	if slot, _ := p2.Symbols.Lookup("x"); slot != 0 {
		t.Fatalf("x moved to slot %d", slot)
	}

	if _, ok := env.Lookup("y"); ok {
		t.Fatalf("Lookup found y before Extend")
	}
	if env.Assign("y", Int(2)) {
		t.Fatalf("Assign wrote y before Extend")
	}
	if err := env.Extend(p2); err != nil {
		t.Fatal(err)
	}
	if !env.Assign("y", Int(2)) {
		t.Fatalf("Assign refused y after Extend")
	}
	if v, ok := env.Lookup("y"); !ok || !Equal(v, Int(2)) {
		t.Fatalf("y = %v, %v", v, ok)
	}
}

func TestEnvironment(t *testing.T) {
	p := compile(t, "; = a 1 b", Features{CheckVariables: true})
	env := NewEnvironment(p)
	if env.Len() != 2 {
		t.Fatalf("len = %d, want 2", env.Len())
	}
	if _, err := env.Get(1); !IsKind(err, KindUndefinedVariable) {
		t.Fatalf("unset slot: err = %v", err)
	}
	if !env.Assign("b", Int(4)) {
		t.Fatalf("Assign refused a known name")
	}
	if env.Assign("zzz", Int(4)) {
		t.Fatalf("Assign accepted an unknown name")
	}
	if v, err := env.Get(1); err != nil || !Equal(v, Int(4)) {
		t.Fatalf("b = %v, %v", v, err)
	}
	if _, err := env.Get(9); !IsFatal(err) {
		t.Fatalf("out of range slot: err = %v, want fatal", err)
	}
	exported := env.Export()
	if len(exported) != 1 || !Equal(exported["b"], Int(4)) {
		t.Fatalf("export = %v", exported)
	}

	other := compile(t, "1", Features{})
	if err := env.Extend(other); err == nil {
		t.Fatalf("extended with a foreign symbol table")
	}
}
