package knight

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

type runResult struct {
	program *Program
	env     *Environment
	vm      *VM
	value   Value
	output  string
	err     error
}

func runWith(t *testing.T, src string, features Features, input string) runResult {
	t.Helper()
	table := NewDispatchTable(features)
	program, err := CompileSource(NewCompiler(table), "test.kn", src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	vm := NewVMInDomain(table, NewEpochDomain())
	t.Cleanup(vm.Close)
	var out bytes.Buffer
	vm.Output = NewLineWriter(&out)
	vm.Input = NewLineReader(strings.NewReader(input))
	env := NewEnvironment(program)
	v, err := vm.Run(program, env)
	return runResult{program: program, env: env, vm: vm, value: v, output: out.String(), err: err}
}

func run(t *testing.T, src string, features Features) runResult {
	t.Helper()
	return runWith(t, src, features, "")
}

func mustRun(t *testing.T, src string, features Features) runResult {
	t.Helper()
	r := run(t, src, features)
	if r.err != nil {
		t.Fatalf("run %q: unexpected error: %v", src, r.err)
	}
	return r
}

func mustVar(t *testing.T, env *Environment, name string) Value {
	t.Helper()
	v, ok := env.Lookup(name)
	if !ok {
		t.Fatalf("variable %s not set", name)
	}
	return v
}

func TestAssignThenOutput(t *testing.T) {
	r := mustRun(t, "; = x 5 OUTPUT + x 1", Features{})
	if r.output != "6\n" {
		t.Fatalf("output = %q, want %q", r.output, "6\n")
	}
	if x := mustVar(t, r.env, "x"); !Equal(x, Int(5)) {
		t.Fatalf("x = %v, want 5", x)
	}
	if !r.value.IsNull() {
		t.Fatalf("result = %v, want null", r.value)
	}
}

func TestBlockSeesLiveVariables(t *testing.T) {
	r := mustRun(t, "; = x 0 ; = inc BLOCK = x + x 1 ; CALL inc ; CALL inc x", Features{})
	if !Equal(r.value, Int(2)) {
		t.Fatalf("result = %v, want 2", r.value)
	}
	if x := mustVar(t, r.env, "x"); !Equal(x, Int(2)) {
		t.Fatalf("x = %v, want 2", x)
	}
}

func TestBlockCapturesNothing(t *testing.T) {
	r := mustRun(t, "; = x 1 ; = b BLOCK x ; = x 2 CALL b", Features{})
	if !Equal(r.value, Int(2)) {
		t.Fatalf("result = %v, want 2", r.value)
	}
}

func TestBlockDefersSideEffects(t *testing.T) {
	r := mustRun(t, "; = b BLOCK ; OUTPUT 'hi' = y 1 99", Features{CheckVariables: true})
	if r.output != "" {
		t.Fatalf("uncalled block wrote %q", r.output)
	}
	if _, ok := r.env.Lookup("y"); ok {
		t.Fatalf("uncalled block assigned y")
	}
	if !Equal(r.value, Int(99)) {
		t.Fatalf("result = %v, want 99", r.value)
	}

	r = mustRun(t, "; = b BLOCK OUTPUT 'hi' ; CALL b CALL b", Features{})
	if r.output != "hi\nhi\n" {
		t.Fatalf("output = %q, want two lines", r.output)
	}
}

func TestDivisionByZeroIsDomainError(t *testing.T) {
	r := run(t, "OUTPUT / 1 0", Features{})
	if !IsKind(r.err, KindDomain) {
		t.Fatalf("err = %v, want domain error", r.err)
	}
	if r.output != "" {
		t.Fatalf("output = %q, want nothing", r.output)
	}
	kerr, _ := AsKnightError(r.err)
	if kerr.Loc.Line != 1 || kerr.Loc.ColStart != 8 {
		t.Fatalf("error location = %s, want 1:8", kerr.Loc)
	}
}

func TestUndefinedVariable(t *testing.T) {
	r := run(t, "x", Features{CheckVariables: true})
	if !IsKind(r.err, KindUndefinedVariable) {
		t.Fatalf("err = %v, want undefined-variable", r.err)
	}

	r = mustRun(t, "x", Features{})
	if !r.value.IsNull() {
		t.Fatalf("result = %v, want null", r.value)
	}
}

func TestQuitUnwindsNestedBlocks(t *testing.T) {
	src := `
		; = inner BLOCK ; QUIT 42 OUTPUT 'inner after'
		; = outer BLOCK ; CALL inner OUTPUT 'outer after'
		; CALL outer
		OUTPUT 'main after'`
	r := run(t, src, Features{})
	exit, ok := AsExit(r.err)
	if !ok {
		t.Fatalf("err = %v, want exit signal", r.err)
	}
	if exit.Code != 42 {
		t.Fatalf("exit code = %d, want 42", exit.Code)
	}
	if IsRuntime(r.err) || IsFatal(r.err) {
		t.Fatalf("exit signal classified as an error: %v", r.err)
	}
	if r.output != "" {
		t.Fatalf("output = %q, want nothing", r.output)
	}
	if len(r.vm.frames) != 0 || r.vm.sp != 0 {
		t.Fatalf("frames = %d, sp = %d after quit", len(r.vm.frames), r.vm.sp)
	}
}

func TestCallNonBlockIsIdentity(t *testing.T) {
	r := mustRun(t, "CALL 3", Features{})
	if !Equal(r.value, Int(3)) {
		t.Fatalf("result = %v, want 3", r.value)
	}

	r = run(t, "CALL 3", Features{Compliance: true})
	if !IsKind(r.err, KindTypeMismatch) {
		t.Fatalf("err = %v, want type mismatch under compliance", r.err)
	}
}

func TestRecursionThroughBlocks(t *testing.T) {
	src := `
		; = fact BLOCK
			IF < n 2
				1
				* n ; = n - n 1 CALL fact
		; = n 10
		CALL fact`
	r := mustRun(t, src, Features{})
	if !Equal(r.value, Int(3628800)) {
		t.Fatalf("10! = %v, want 3628800", r.value)
	}
}

func TestStackGrowthRetiresBuffers(t *testing.T) {
	src := strings.Repeat("+ 1 ", 600) + "0"
	r := mustRun(t, src, Features{})
	if !Equal(r.value, Int(600)) {
		t.Fatalf("result = %v, want 600", r.value)
	}
	if st := r.vm.domain.Stats(); st.Retired == 0 {
		t.Fatalf("stack growth retired nothing: %+v", st)
	}
}

func TestStacktraceNamesBlocks(t *testing.T) {
	r := run(t, "; = f BLOCK / 1 0 CALL f", Features{Stacktrace: true})
	kerr, ok := AsKnightError(r.err)
	if !ok || kerr.Type != ErrorRuntime {
		t.Fatalf("err = %v, want runtime error", r.err)
	}
	if len(kerr.Trace) != 2 {
		t.Fatalf("trace = %v, want two frames", kerr.Trace)
	}
	if kerr.Trace[0].Block != "f" || kerr.Trace[1].Block != "<main>" {
		t.Fatalf("trace = %v, want f then <main>", kerr.Trace)
	}
	if !strings.Contains(kerr.Error(), "in f") {
		t.Fatalf("rendered error lacks trace: %s", kerr.Error())
	}

	r = run(t, "; = f BLOCK / 1 0 CALL f", Features{})
	kerr, _ = AsKnightError(r.err)
	if kerr.Trace != nil {
		t.Fatalf("trace captured without the stacktrace feature: %v", kerr.Trace)
	}
}

func TestHandleRecoversRuntimeErrors(t *testing.T) {
	r := mustRun(t, "HANDLE / 1 0 + 'caught: ' _", Features{Extensions: true})
	if got := r.value.AsString(); got != "caught: /: division by zero" {
		t.Fatalf("result = %q", got)
	}

	r = mustRun(t, "HANDLE + 1 2 99", Features{Extensions: true})
	if !Equal(r.value, Int(3)) {
		t.Fatalf("result = %v, want 3", r.value)
	}

	r = mustRun(t, "HANDLE YEET 'boom' _", Features{Extensions: true})
	if r.value.AsString() != "boom" {
		t.Fatalf("result = %v, want boom", r.value)
	}
}

func TestHandleNeverCatchesQuit(t *testing.T) {
	r := run(t, "; HANDLE QUIT 3 OUTPUT 'handled' OUTPUT 'after'", Features{Extensions: true})
	exit, ok := AsExit(r.err)
	if !ok || exit.Code != 3 {
		t.Fatalf("err = %v, want exit 3", r.err)
	}
	if r.output != "" {
		t.Fatalf("output = %q, want nothing", r.output)
	}
}

func TestHandleRestoresStack(t *testing.T) {
	r := mustRun(t, "+ 1 HANDLE + 2 + 3 / 1 0 10", Features{Extensions: true})
	if !Equal(r.value, Int(11)) {
		t.Fatalf("result = %v, want 11", r.value)
	}
}

func TestArityMismatchIsFatal(t *testing.T) {
	table := NewDispatchTable(Features{})
	plus, _ := table.Index("+")
	tok := &Token{Kind: TokenFunc, Value: "+"}
	p := &Program{
		Symbols: NewSymbolTable(),
		table:   table,
		Code: []Instruction{
			{Op: OpConst, Operand: 0},
			{Op: OpDispatch, Operand: plus, Arity: 1, Token: tok},
			{Op: OpReturn},
		},
		Constants: []Value{Int(1)},
	}
	p.initBlocks()
	vm := NewVMInDomain(table, NewEpochDomain())
	defer vm.Close()
	_, err := vm.Run(p, NewEnvironment(p))
	if !IsFatal(err) {
		t.Fatalf("err = %v, want fatal", err)
	}
}

func TestWellFormedProgramsNeverFatal(t *testing.T) {
	sources := []string{
		"; = x 3 WHILE x = x - x 1",
		"& 1 | 0 2",
		"IF ! 1 'a' ; = q BLOCK 1 CALL q",
		"GET 'hello' 1 3",
		"SET ,1 0 1 @",
		"+ @ 123",
	}
	for _, src := range sources {
		r := run(t, src, Features{})
		if IsFatal(r.err) {
			t.Errorf("%q: fatal error %v", src, r.err)
		}
	}
}

func TestRunRejectsForeignTable(t *testing.T) {
	program, err := CompileSource(NewCompiler(NewDispatchTable(Features{})), "a.kn", "1")
	if err != nil {
		t.Fatal(err)
	}
	vm := NewVMInDomain(NewDispatchTable(Features{}), NewEpochDomain())
	defer vm.Close()
	if _, err := vm.Run(program, NewEnvironment(program)); !IsFatal(err) {
		t.Fatalf("err = %v, want fatal", err)
	}
}

func TestSharedSymbolsAcrossPrograms(t *testing.T) {
	table := NewDispatchTable(Features{})
	c := NewCompiler(table)
	vm := NewVMInDomain(table, NewEpochDomain())
	defer vm.Close()

	first, err := CompileSource(c, "1.kn", "; = x 40 = f BLOCK + x 2")
	if err != nil {
		t.Fatal(err)
	}
	env := NewEnvironment(first)
	if _, err := vm.Run(first, env); err != nil {
		t.Fatal(err)
	}

	second, err := CompileSource(c, "2.kn", "; = y 1 CALL f")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Extend(second); err != nil {
		t.Fatal(err)
	}
	v, err := vm.Run(second, env)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(v, Int(42)) {
		t.Fatalf("result = %v, want 42", v)
	}
}

func TestEval(t *testing.T) {
	features := Features{Extensions: true}
	tests := []struct {
		src  string
		want string
	}{
		{`EVAL '+ 1 2'`, `3`},
		{`; = x 4 EVAL '* x x'`, `16`},
		{`; EVAL '= y 7' y`, `7`},
		{`; EVAL '= f BLOCK + 1 1' CALL f`, `2`},
		{`; = z 1 ; EVAL 'EVAL "= z + z 1"' z`, `2`},
		{`+ 1 EVAL '; = n 2 * n 10'`, `21`},
	}
	for _, tt := range tests {
		r := mustRun(t, tt.src, features)
		if got, _ := Dump(r.value); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}

	r := mustRun(t, `EVAL '= fresh 5'`, features)
	if got := mustVar(t, r.env, "fresh"); !Equal(got, Int(5)) {
		t.Fatalf("fresh = %v, want 5", got)
	}

	if r := run(t, `EVAL '/ 1 0'`, features); !IsKind(r.err, KindDomain) {
		t.Fatalf("EVAL '/ 1 0': err = %v, want domain error", r.err)
	}
	r = run(t, `EVAL '+ 1'`, features)
	if kerr, ok := AsKnightError(r.err); !ok || kerr.Type != ErrorParse {
		t.Fatalf("EVAL '+ 1': err = %v, want parse error", r.err)
	}
	r = mustRun(t, `+ 1 HANDLE EVAL '/ 1 0' 10`, features)
	if !Equal(r.value, Int(11)) {
		t.Fatalf("recovered EVAL = %v, want 11", r.value)
	}
	if _, err := Parse("x.kn", `EVAL '1'`, NewDispatchTable(Features{})); err == nil {
		t.Fatalf("EVAL parsed without the extensions feature")
	}
}

func TestEvalStacktrace(t *testing.T) {
	r := run(t, "; = f BLOCK EVAL '/ 1 0' CALL f", Features{Extensions: true, Stacktrace: true})
	kerr, ok := AsKnightError(r.err)
	if !ok || len(kerr.Trace) != 3 {
		t.Fatalf("err = %v, want a three frame trace", r.err)
	}
	got := []string{kerr.Trace[0].Block, kerr.Trace[1].Block, kerr.Trace[2].Block}
	if got[0] != "<eval>" || got[1] != "f" || got[2] != "<main>" {
		t.Fatalf("trace = %v", got)
	}
}

func TestUse(t *testing.T) {
	features := Features{Extensions: true}
	table := NewDispatchTable(features)
	files := map[string]string{"lib.kn": "= double BLOCK * x 2"}

	runUse := func(src string, readFile func(string) (string, error)) (Value, error) {
		t.Helper()
		program, err := CompileSource(NewCompiler(table), "main.kn", src)
		if err != nil {
			t.Fatal(err)
		}
		vm := NewVMInDomain(table, NewEpochDomain())
		t.Cleanup(vm.Close)
		vm.ReadFile = readFile
		return vm.Run(program, NewEnvironment(program))
	}
	readFile := func(name string) (string, error) {
		src, ok := files[name]
		if !ok {
			return "", os.ErrNotExist
		}
		return src, nil
	}

	v, err := runUse(`; = x 21 ; USE 'lib.kn' CALL double`, readFile)
	if err != nil || !Equal(v, Int(42)) {
		t.Fatalf("USE = %v, %v, want 42", v, err)
	}
	if _, err := runUse(`USE 'missing.kn'`, readFile); !IsKind(err, KindIO) {
		t.Fatalf("missing file: err = %v, want io error", err)
	}
	if _, err := runUse(`USE 'lib.kn'`, nil); !IsKind(err, KindIO) {
		t.Fatalf("no file access: err = %v, want io error", err)
	}
}

func TestArgv(t *testing.T) {
	runArgs := func(src string, features Features) (Value, error) {
		t.Helper()
		table := NewDispatchTable(features)
		program, err := CompileSource(NewCompiler(table), "main.kn", src)
		if err != nil {
			t.Fatal(err)
		}
		vm := NewVMInDomain(table, NewEpochDomain())
		t.Cleanup(vm.Close)
		vm.SetArgs([]string{"a", "bc"})
		return vm.Run(program, NewEnvironment(program))
	}
	ext := Features{Extensions: true}
	tests := []struct {
		src  string
		want string
	}{
		{`argv`, `["a", "bc"]`},
		{`VALUE 'argv'`, `["a", "bc"]`},
		{`EVAL 'LENGTH argv'`, `2`},
	}
	for _, tt := range tests {
		v, err := runArgs(tt.src, ext)
		if err != nil {
			t.Fatalf("%s: %v", tt.src, err)
		}
		if got, _ := Dump(v); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}

	if v, err := runArgs(`argv`, Features{}); err != nil || !v.IsNull() {
		t.Fatalf("argv without extensions = %v, %v, want null", v, err)
	}
}
