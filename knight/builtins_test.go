package knight

import (
	"strings"
	"testing"
)

func TestOperatorSemantics(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`+ 'a' 1`, `"a1"`},
		{`+ 1 '2'`, `3`},
		{`+ 1 '  -12abc'`, `-11`},
		{`+ 1 TRUE`, `2`},
		{`+ @ 123`, `[1, 2, 3]`},
		{`+ ,1 'ab'`, `[1, "a", "b"]`},
		{`- 10 '4'`, `6`},
		{`* 'ab' 3`, `"ababab"`},
		{`* ,1 3`, `[1, 1, 1]`},
		{`* 'ab' 0`, `""`},
		{`* ,1 0`, `[]`},
		{`* @ 1000000000000`, `[]`},
		{`LENGTH * '' 1000000000000`, `0`},
		{`/ 7 2`, `3`},
		{`/ ~7 2`, `-3`},
		{`% 7 3`, `1`},
		{`^ 2 10`, `1024`},
		{`^ 2 0`, `1`},
		{`^ 2 ~1`, `0`},
		{`^ ~1 ~3`, `-1`},
		{`^ 1 ~5`, `1`},
		{`^ + @ 123 '-'`, `"1-2-3"`},
		{`< 'a' 'b'`, `true`},
		{`< 2 '10'`, `true`},
		{`> 'b' 'a'`, `true`},
		{`< FALSE TRUE`, `true`},
		{`< ,1 + ,1 ,0`, `true`},
		{`? + @ 1 ,1`, `true`},
		{`? 1 '1'`, `false`},
		{`? NULL NULL`, `true`},
		{`! 0`, `true`},
		{`! 'x'`, `false`},
		{`! @`, `true`},
		{`~ 5`, `-5`},
		{`LENGTH 'hello'`, `5`},
		{`LENGTH 1234`, `4`},
		{`LENGTH ~123`, `3`},
		{`LENGTH NULL`, `0`},
		{`GET 'hello' 1 3`, `"ell"`},
		{`GET + @ 123 1 2`, `[2, 3]`},
		{`GET 'abc' 3 0`, `""`},
		{`SET 'hello' 0 1 'j'`, `"jello"`},
		{`SET + @ 123 1 1 ,9`, `[1, 9, 3]`},
		{`[ 'abc'`, `"a"`},
		{`] 'abc'`, `"bc"`},
		{`[ + @ 45`, `4`},
		{`] + @ 45`, `[5]`},
		{`ASCII 65`, `"A"`},
		{`ASCII 'abc'`, `97`},
		{`ASCII ASCII 200`, `200`},
		{`LENGTH ASCII 200`, `1`},
		{`ASCII 'é'`, `195`},
		{`LENGTH 'é'`, `2`},
		{`, 1`, `[1]`},
		{`: 5`, `5`},
		{`& 0 QUIT 1`, `0`},
		{`& 1 2`, `2`},
		{`| 1 QUIT 1`, `1`},
		{`| '' 'x'`, `"x"`},
		{`IF 1 'y' 'n'`, `"y"`},
		{`IF @ 'y' 'n'`, `"n"`},
		{`; = i 0 ; WHILE < i 5 = i + i 1 i`, `5`},
		{`WHILE 0 1`, `null`},
		{`(+ 1 2)`, `3`},
	}
	for _, tt := range tests {
		r := mustRun(t, tt.src, Features{})
		got, err := Dump(r.value)
		if err != nil {
			t.Fatalf("%s: dump: %v", tt.src, err)
		}
		if got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestOperatorErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind ErrorKind
	}{
		{`/ 1 0`, KindDomain},
		{`% 1 0`, KindDomain},
		{`^ 0 ~1`, KindDomain},
		{`+ 9223372036854775807 1`, KindOverflow},
		{`- ~9223372036854775807 2`, KindOverflow},
		{`* 4611686018427387904 2`, KindOverflow},
		{`^ 2 64`, KindOverflow},
		{`+ 1 '99999999999999999999'`, KindOverflow},
		{`- 'a' 1`, KindTypeMismatch},
		{`+ TRUE 1`, KindTypeMismatch},
		{`* 'a' ~1`, KindDomain},
		{`GET 'abc' 2 5`, KindIndexOutOfRange},
		{`GET 'abc' ~1 1`, KindDomain},
		{`SET ,1 2 0 1`, KindIndexOutOfRange},
		{`[ ''`, KindDomain},
		{`] @`, KindDomain},
		{`ASCII ''`, KindDomain},
		{`ASCII ~1`, KindDomain},
		{`ASCII 256`, KindDomain},
		{`+ 1 BLOCK 1`, KindConversion},
		{`! BLOCK 1`, KindConversion},
		{`OUTPUT BLOCK 1`, KindConversion},
		{`DUMP BLOCK 1`, KindTypeMismatch},
		{`< BLOCK 1 1`, KindTypeMismatch},
	}
	for _, tt := range tests {
		r := run(t, tt.src, Features{})
		if !IsKind(r.err, tt.kind) {
			t.Errorf("%s: err = %v, want %s", tt.src, r.err, tt.kind)
		}
	}
}

func TestDeeplyNestedListsFailCleanly(t *testing.T) {
	build := `; = l @ ; = i 0 ; WHILE < i 20000 ; = l , l = i + i 1 `
	for _, op := range []string{`DUMP l`, `OUTPUT l`, `? l l`, `< l l`} {
		r := run(t, build+op, Features{})
		if !IsKind(r.err, KindStackOverflow) {
			t.Errorf("%s: err = %v, want %s", op, r.err, KindStackOverflow)
		}
	}
	if r := mustRun(t, build+`? l ,1`, Features{}); !Equal(r.value, False) {
		t.Errorf("shallow mismatch = %v, want false", r.value)
	}
}

func TestOutputAndDump(t *testing.T) {
	r := mustRun(t, `; OUTPUT 'abc\' ; OUTPUT 'def' ; OUTPUT + ,1 ,2 DUMP + ,1 ,'x'`, Features{})
	want := "abcdef\n1\n2\n[1, \"x\"]"
	if r.output != want {
		t.Fatalf("output = %q, want %q", r.output, want)
	}
	if got, _ := Dump(r.value); got != `[1, "x"]` {
		t.Fatalf("DUMP returned %s, want its argument", got)
	}
}

func TestPromptStripsLineEndings(t *testing.T) {
	r := runWith(t, `+ + ,PROMPT ,PROMPT ,PROMPT`, Features{}, "line1\r\r\nline2")
	if r.err != nil {
		t.Fatal(r.err)
	}
	if got, _ := Dump(r.value); got != `["line1", "line2", null]` {
		t.Fatalf("PROMPT lines = %s", got)
	}
}

func TestQuitStatus(t *testing.T) {
	r := run(t, `QUIT '7'`, Features{})
	if exit, ok := AsExit(r.err); !ok || exit.Code != 7 {
		t.Fatalf("err = %v, want exit 7", r.err)
	}
}

func TestRandomIsSeedable(t *testing.T) {
	table := NewDispatchTable(Features{})
	program, err := CompileSource(NewCompiler(table), "r.kn", `+ + ,RANDOM ,RANDOM ,RANDOM`)
	if err != nil {
		t.Fatal(err)
	}
	draw := func() string {
		vm := NewVMInDomain(table, NewEpochDomain())
		defer vm.Close()
		vm.Seed(42)
		v, err := vm.Run(program, NewEnvironment(program))
		if err != nil {
			t.Fatal(err)
		}
		s, _ := Dump(v)
		return s
	}
	if a, b := draw(), draw(); a != b {
		t.Fatalf("same seed gave %s and %s", a, b)
	}
}

func TestCompliance(t *testing.T) {
	features := Features{Compliance: true}
	errs := []struct {
		src  string
		kind ErrorKind
	}{
		{`QUIT 200`, KindDomain},
		{`+ 2147483647 1`, KindOverflow},
		{`* 65536 65536`, KindOverflow},
		{`% ~7 2`, KindDomain},
		{`^ 2 ~1`, KindDomain},
		{`? BLOCK 1 BLOCK 1`, KindTypeMismatch},
		{`ASCII 1`, KindDomain},
		{`LENGTH ~12`, KindDomain},
		{`CALL 1`, KindTypeMismatch},
	}
	for _, tt := range errs {
		r := run(t, tt.src, features)
		if !IsKind(r.err, tt.kind) {
			t.Errorf("%s: err = %v, want %s", tt.src, r.err, tt.kind)
		}
	}

	for i := 0; i < 20; i++ {
		r := mustRun(t, `RANDOM`, features)
		if n := r.value.AsInt(); n < 0 || n > maxCompliantRandom {
			t.Fatalf("RANDOM = %d, outside 0..%d", n, maxCompliantRandom)
		}
	}

	table := NewDispatchTable(features)
	if _, err := Parse("big.kn", "2147483648", table); err == nil {
		t.Fatalf("32-bit overflow in a literal was accepted")
	}
	if _, err := Parse("trailing.kn", "1 2", table); err == nil {
		t.Fatalf("trailing token accepted under compliance")
	}
	if _, err := Parse("trailing.kn", "1 2", NewDispatchTable(Features{})); err != nil {
		t.Fatalf("trailing token rejected without compliance: %v", err)
	}
}

func TestExtensionOperators(t *testing.T) {
	features := Features{Extensions: true}
	tests := []struct {
		src  string
		want string
	}{
		{`XRANGE 2 5`, `[2, 3, 4]`},
		{`XRANGE 3 3`, `[]`},
		{`XREVERSE 'abc'`, `"cba"`},
		{`XREVERSE + @ 123`, `[3, 2, 1]`},
		{`; = x 5 VALUE 'x'`, `5`},
		{`; = k 'v' ; = v 9 VALUE k`, `9`},
		{`VALUE 'nowhere'`, `null`},
		{`XSRAND 3`, `null`},
		{`GET 'hello' ~3 2`, `"ll"`},
		{`GET + @ 123 ~1 1`, `[3]`},
		{`SET 'hello' ~1 1 'p'`, `"hellp"`},
		{`SET + @ 123 ~3 1 @`, `[2, 3]`},
	}
	for _, tt := range tests {
		r := mustRun(t, tt.src, features)
		if got, _ := Dump(r.value); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}

	r := run(t, `XRANGE 5 2`, features)
	if !IsKind(r.err, KindDomain) {
		t.Fatalf("XRANGE 5 2: err = %v, want domain error", r.err)
	}
	r = run(t, `GET 'abc' ~4 1`, features)
	if !IsKind(r.err, KindDomain) {
		t.Fatalf("GET 'abc' ~4 1: err = %v, want domain error", r.err)
	}
	r = run(t, `YEET 'nope'`, features)
	if !IsKind(r.err, KindUser) {
		t.Fatalf("YEET: err = %v, want user error", r.err)
	}

	if _, err := Parse("x.kn", `XRANGE 1 2`, NewDispatchTable(Features{})); err == nil {
		t.Fatalf("extension operator parsed without the extensions feature")
	}
}

func TestOperatorsRejectBlocksWithoutPanicking(t *testing.T) {
	features := Features{Extensions: true}
	blockRun := mustRun(t, `BLOCK 1`, features)
	block := blockRun.value
	vm := blockRun.vm

	accepts := map[string]bool{":": true, ",": true, "?": true}
	for _, b := range NewDispatchTable(features).Entries() {
		if b.Form != FormDispatch || b.Lazy || b.Arity == 0 || accepts[b.Key] {
			continue
		}
		args := make([]Value, b.Arity)
		for i := range args {
			args[i] = block
		}
		_, err := b.Fn(vm, args)
		if !IsRuntime(err) {
			t.Errorf("%s with block operands: err = %v, want runtime error", b.Name, err)
		}
	}
}

func TestCoreArityIsIndependentOfFeatures(t *testing.T) {
	names := FeatureNames()
	arity := make(map[string]int)
	for mask := 0; mask < 1<<len(names); mask++ {
		var list []string
		for i, name := range names {
			if mask&(1<<i) != 0 {
				list = append(list, name)
			}
		}
		features, err := ParseFeatures(strings.Join(list, ","))
		if err != nil {
			t.Fatal(err)
		}
		for _, b := range NewDispatchTable(features).Entries() {
			if want, ok := arity[b.Key]; ok && want != b.Arity {
				t.Fatalf("%s has arity %d under %s, %d elsewhere", b.Key, b.Arity, features, want)
			}
			arity[b.Key] = b.Arity
			if b.Form == FormDispatch && b.Fn == nil {
				t.Fatalf("%s has no implementation under %s", b.Key, features)
			}
		}
	}
}

func TestEveryOperatorIsDocumented(t *testing.T) {
	for _, b := range NewDispatchTable(Features{Extensions: true}).Entries() {
		if b.Doc == nil {
			t.Errorf("%s has no documentation", b.Name)
		}
	}
}
