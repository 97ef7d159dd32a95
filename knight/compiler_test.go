package knight

import (
	"strings"
	"testing"
)

func compile(t *testing.T, src string, features Features) *Program {
	t.Helper()
	p, err := CompileSource(NewCompiler(NewDispatchTable(features)), "test.kn", src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return p
}

func opsOf(p *Program) []OpCode {
	ops := make([]OpCode, len(p.Code))
	for i, instr := range p.Code {
		ops[i] = instr.Op
	}
	return ops
}

func expectOps(t *testing.T, p *Program, want ...OpCode) {
	t.Helper()
	got := opsOf(p)
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops = %v, want %v", got, want)
		}
	}
}

func TestCompileDispatch(t *testing.T) {
	p := compile(t, "+ 1 2", Features{})
	expectOps(t, p, OpConst, OpConst, OpDispatch, OpReturn)
	plus, _ := p.Table().Index("+")
	if d := p.Code[2]; d.Operand != plus || d.Arity != 2 {
		t.Fatalf("dispatch = %v, want + with two operands", d)
	}
	if len(p.Constants) != 2 {
		t.Fatalf("constants = %v", p.Constants)
	}
}

func TestCompileDeduplicatesConstants(t *testing.T) {
	p := compile(t, "+ + 1 'a' + 1 'a'", Features{})
	if len(p.Constants) != 2 {
		t.Fatalf("constants = %v, want two entries", p.Constants)
	}
}

func TestCompileBlockLiteral(t *testing.T) {
	p := compile(t, "= f BLOCK 1", Features{})
	expectOps(t, p, OpJump, OpConst, OpReturn, OpMakeBlock, OpSetSlot, OpReturn)
	if p.Code[0].Operand != 2 {
		t.Fatalf("jump offset = %d, want 2", p.Code[0].Operand)
	}
	if len(p.Blocks) != 1 {
		t.Fatalf("blocks = %v", p.Blocks)
	}
	b := p.Blocks[0]
	if b.Start != 1 || b.End != 2 || b.Name != "f" {
		t.Fatalf("block = %+v, want start 1, end 2, name f", b)
	}
}

func TestCompileShortCircuit(t *testing.T) {
	p := compile(t, "& 1 2", Features{})
	expectOps(t, p, OpConst, OpDup, OpJumpIfFalse, OpPop, OpConst, OpReturn)
	if off := p.Code[2].Operand; off != 2 {
		t.Fatalf("jump offset = %d, want 2", off)
	}

	p = compile(t, "| 1 2", Features{})
	expectOps(t, p, OpConst, OpDup, OpJumpIfTrue, OpPop, OpConst, OpReturn)
}

func TestCompileWhileLoop(t *testing.T) {
	p := compile(t, "WHILE x 1", Features{})
	expectOps(t, p, OpGetSlot, OpJumpIfFalse, OpConst, OpPop, OpJump, OpConst, OpReturn)
	if back := p.Code[4].Operand; 4+1+back != 0 {
		t.Fatalf("loop jumps to %d, want 0", 4+1+back)
	}
	if exit := p.Code[1].Operand; 1+1+exit != 5 {
		t.Fatalf("exit jumps to %d, want 5", 1+1+exit)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	src := "; = a 1 ; = b BLOCK + a 2 IF a CALL b 'no'"
	p1, p2 := compile(t, src, Features{}), compile(t, src, Features{})
	if len(p1.Code) != len(p2.Code) {
		t.Fatalf("code lengths differ: %d vs %d", len(p1.Code), len(p2.Code))
	}
	for i := range p1.Code {
		a, b := p1.Code[i], p2.Code[i]
		if a.Op != b.Op || a.Operand != b.Operand || a.Arity != b.Arity {
			t.Fatalf("instruction %d differs: %v vs %v", i, a, b)
		}
	}
}

func TestCompileArityMismatch(t *testing.T) {
	table := NewDispatchTable(Features{})
	one := &Literal{Token: &Token{Kind: TokenInt, Value: "1"}, Value: Int(1)}
	tok := &Token{Kind: TokenFunc, Value: "+", Loc: Loc{FileName: "x.kn", Line: 2, ColStart: 5}}

	_, err := NewCompiler(table).Compile(&Call{Token: tok, Op: "+", Args: []ASTNode{one}})
	kerr, ok := AsKnightError(err)
	if !ok || kerr.Type != ErrorCompile {
		t.Fatalf("err = %v, want compile error", err)
	}
	if kerr.Loc.Line != 2 || kerr.Loc.ColStart != 5 {
		t.Fatalf("error at %s, want 2:5", kerr.Loc)
	}

	_, err = NewCompiler(table).Compile(&Call{Token: tok, Op: "XNOPE"})
	if kerr, ok := AsKnightError(err); !ok || kerr.Type != ErrorCompile {
		t.Fatalf("unknown operator: err = %v, want compile error", err)
	}
}

func TestCompileFloatNeedsFeature(t *testing.T) {
	lit := &Literal{Token: &Token{Kind: TokenFloat, Value: "1.5"}, Value: Float(1.5)}
	if _, err := NewCompiler(NewDispatchTable(Features{})).Compile(lit); err == nil {
		t.Fatalf("float literal compiled without the floats feature")
	}
	if _, err := NewCompiler(NewDispatchTable(Features{Floats: true})).Compile(lit); err != nil {
		t.Fatalf("float literal rejected with the floats feature: %v", err)
	}
}

func TestCompileEmpty(t *testing.T) {
	if _, err := NewCompiler(NewDispatchTable(Features{})).Compile(nil); err == nil {
		t.Fatalf("compiled an empty program")
	}
}

func TestCompileAssignToNonVariable(t *testing.T) {
	_, err := CompileSource(NewCompiler(NewDispatchTable(Features{})), "t.kn", "= 1 2")
	if kerr, ok := AsKnightError(err); !ok || kerr.Type != ErrorCompile {
		t.Fatalf("err = %v, want compile error", err)
	}

	p := compile(t, "= (x) 2", Features{})
	if _, ok := p.Symbols.Lookup("x"); !ok {
		t.Fatalf("parenthesised target not interned")
	}
}

func TestCheckParens(t *testing.T) {
	checked := Features{CheckParens: true}
	for _, src := range []string{"(+ 1 2", ") + 1 2"} {
		_, err := CompileSource(NewCompiler(NewDispatchTable(checked)), "t.kn", src)
		if kerr, ok := AsKnightError(err); !ok || kerr.Type != ErrorCompile {
			t.Errorf("%q: err = %v, want compile error", src, err)
		}
		r := mustRun(t, src, Features{})
		if !Equal(r.value, Int(3)) {
			t.Errorf("%q without check-parens = %v, want 3", src, r.value)
		}
	}
	if r := mustRun(t, "(+ 1 2)", checked); !Equal(r.value, Int(3)) {
		t.Fatalf("balanced group = %v, want 3", r.value)
	}
}

func TestFailedCompileKeepsNoSymbols(t *testing.T) {
	c := NewCompiler(NewDispatchTable(Features{CheckParens: true}))
	if _, err := CompileSource(c, "1.kn", "= a 1"); err != nil {
		t.Fatal(err)
	}
	if _, err := CompileSource(c, "2.kn", "; = b 2 (+ c 1"); err == nil {
		t.Fatalf("unbalanced program compiled")
	}
	if n := c.Symbols().SlotCount(); n != 1 {
		t.Fatalf("slot count = %d after failed compile, want 1", n)
	}
	for _, name := range []string{"b", "c"} {
		if _, ok := c.Symbols().Lookup(name); ok {
			t.Errorf("%s survived a failed compile", name)
		}
	}
}

func TestHandleBindsItsVariable(t *testing.T) {
	p := compile(t, "HANDLE 1 2", Features{Extensions: true})
	if _, ok := p.Symbols.Lookup(handleVariable); !ok {
		t.Fatalf("HANDLE did not intern %s", handleVariable)
	}
	if len(p.Blocks) != 2 {
		t.Fatalf("HANDLE operands compiled to %d blocks, want 2", len(p.Blocks))
	}
}

func TestDisassemble(t *testing.T) {
	p := compile(t, "; = f BLOCK + x 1 CALL f", Features{})
	out := Disassemble(p)
	for _, want := range []string{"OP_DISPATCH", "+/2", "; block 0 f", "0001: x", "OP_CALL"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, out)
		}
	}
}
