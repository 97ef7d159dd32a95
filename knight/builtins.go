package knight

import (
	"fmt"
	"math"
	"strings"
)

// maxContainerLen bounds String and List results so that a runaway repeat
// fails with a domain error instead of exhausting memory.
const maxContainerLen = 1 << 40

func coreBuiltins() []*Builtin {
	return []*Builtin{
		{Name: "TRUE", Key: "T", Arity: 0, Form: FormLiteral},
		{Name: "FALSE", Key: "F", Arity: 0, Form: FormLiteral},
		{Name: "NULL", Key: "N", Arity: 0, Form: FormLiteral},
		{Name: "@", Key: "@", Arity: 0, Form: FormLiteral},

		{Name: "BLOCK", Key: "B", Arity: 1, Form: FormSpecial},
		{Name: "CALL", Key: "C", Arity: 1, Form: FormSpecial},
		{Name: "=", Key: "=", Arity: 2, Form: FormSpecial},
		{Name: "&", Key: "&", Arity: 2, Form: FormSpecial},
		{Name: "|", Key: "|", Arity: 2, Form: FormSpecial},
		{Name: ";", Key: ";", Arity: 2, Form: FormSpecial},
		{Name: "IF", Key: "I", Arity: 3, Form: FormSpecial},
		{Name: "WHILE", Key: "W", Arity: 2, Form: FormSpecial},

		{Name: "PROMPT", Key: "P", Arity: 0, Fn: builtinPrompt},
		{Name: "RANDOM", Key: "R", Arity: 0, Fn: builtinRandom},
		{Name: ":", Key: ":", Arity: 1, Fn: builtinNoop},
		{Name: "QUIT", Key: "Q", Arity: 1, Fn: builtinQuit},
		{Name: "!", Key: "!", Arity: 1, Fn: builtinNot},
		{Name: "~", Key: "~", Arity: 1, Fn: builtinNegate},
		{Name: "LENGTH", Key: "L", Arity: 1, Fn: builtinLength},
		{Name: "DUMP", Key: "D", Arity: 1, Fn: builtinDump},
		{Name: "OUTPUT", Key: "O", Arity: 1, Fn: builtinOutput},
		{Name: "ASCII", Key: "A", Arity: 1, Fn: builtinAscii},
		{Name: ",", Key: ",", Arity: 1, Fn: builtinBox},
		{Name: "[", Key: "[", Arity: 1, Fn: builtinHead},
		{Name: "]", Key: "]", Arity: 1, Fn: builtinTail},
		{Name: "+", Key: "+", Arity: 2, Fn: builtinAdd},
		{Name: "-", Key: "-", Arity: 2, Fn: builtinSubtract},
		{Name: "*", Key: "*", Arity: 2, Fn: builtinMultiply},
		{Name: "/", Key: "/", Arity: 2, Fn: builtinDivide},
		{Name: "%", Key: "%", Arity: 2, Fn: builtinModulo},
		{Name: "^", Key: "^", Arity: 2, Fn: builtinPower},
		{Name: "<", Key: "<", Arity: 2, Fn: builtinLess},
		{Name: ">", Key: ">", Arity: 2, Fn: builtinGreater},
		{Name: "?", Key: "?", Arity: 2, Fn: builtinEquals},
		{Name: "GET", Key: "G", Arity: 3, Fn: builtinGet},
		{Name: "SET", Key: "S", Arity: 4, Fn: builtinSet},
	}
}

func extensionBuiltins() []*Builtin {
	return []*Builtin{
		{Name: "VALUE", Key: "V", Arity: 1, Extension: true, Fn: builtinValue},
		{Name: "HANDLE", Key: "H", Arity: 2, Extension: true, Lazy: true, Binds: []string{handleVariable}, Fn: builtinHandle},
		{Name: "YEET", Key: "Y", Arity: 1, Extension: true, Fn: builtinYeet},
		{Name: "EVAL", Key: "E", Arity: 1, Extension: true, Fn: builtinEval},
		{Name: "USE", Key: "U", Arity: 1, Extension: true, Fn: builtinUse},
		{Name: "XSRAND", Key: "XSRAND", Arity: 1, Extension: true, Fn: builtinSrand},
		{Name: "XRANGE", Key: "XRANGE", Arity: 2, Extension: true, Fn: builtinRange},
		{Name: "XREVERSE", Key: "XREVERSE", Arity: 1, Extension: true, Fn: builtinReverse},
	}
}

// handleVariable receives the error message when HANDLE recovers.
const handleVariable = "_"

func builtinPrompt(vm *VM, args []Value) (Value, error) {
	if vm.Input == nil {
		return Null, nil
	}
	line, ok, err := vm.Input.ReadLine()
	if err != nil {
		return Null, NewRuntimeError(KindIO, fmt.Sprintf("PROMPT: %v", err))
	}
	if !ok {
		return Null, nil
	}
	return Str(line), nil
}

func builtinRandom(vm *VM, args []Value) (Value, error) {
	return Int(vm.rng.Int63()), nil
}

func builtinNoop(vm *VM, args []Value) (Value, error) {
	return args[0], nil
}

func builtinQuit(vm *VM, args []Value) (Value, error) {
	code, err := args[0].ToInteger()
	if err != nil {
		return Null, err
	}
	return Null, &ExitSignal{Code: int(code)}
}

func builtinNot(vm *VM, args []Value) (Value, error) {
	b, err := args[0].ToBoolean()
	if err != nil {
		return Null, err
	}
	return Bool(!b), nil
}

func builtinNegate(vm *VM, args []Value) (Value, error) {
	if args[0].Type() == TypeFloat {
		return Float(-args[0].AsFloat()), nil
	}
	n, err := args[0].ToInteger()
	if err != nil {
		return Null, err
	}
	r, ok := negInt(n)
	if !ok {
		return Null, overflowError("~")
	}
	return Int(r), nil
}

func builtinLength(vm *VM, args []Value) (Value, error) {
	switch v := args[0]; v.Type() {
	case TypeString:
		return Int(int64(len(v.AsString()))), nil
	case TypeList:
		return Int(int64(len(v.AsList()))), nil
	default:
		l, err := vm.toList("LENGTH", v)
		if err != nil {
			return Null, err
		}
		return Int(int64(len(l))), nil
	}
}

func builtinDump(vm *VM, args []Value) (Value, error) {
	s, err := Dump(args[0])
	if err != nil {
		return Null, err
	}
	if err := vm.write("DUMP", s); err != nil {
		return Null, err
	}
	return args[0], nil
}

func builtinOutput(vm *VM, args []Value) (Value, error) {
	s, err := args[0].ToString()
	if err != nil {
		return Null, err
	}
	if strings.HasSuffix(s, `\`) {
		s = s[:len(s)-1]
	} else {
		s += "\n"
	}
	if err := vm.write("OUTPUT", s); err != nil {
		return Null, err
	}
	return Null, nil
}

func builtinAscii(vm *VM, args []Value) (Value, error) {
	switch v := args[0]; v.Type() {
	case TypeInteger:
		n := v.AsInt()
		if n < 0 || n > math.MaxUint8 {
			return Null, domainError("ASCII: %d is not a byte", n)
		}
		return Str(string([]byte{byte(n)})), nil
	case TypeString:
		s := v.AsString()
		if s == "" {
			return Null, domainError("ASCII: empty string")
		}
		return Int(int64(s[0])), nil
	default:
		return Null, typeError("ASCII", v)
	}
}

func builtinBox(vm *VM, args []Value) (Value, error) {
	return List([]Value{args[0]}), nil
}

func builtinHead(vm *VM, args []Value) (Value, error) {
	switch v := args[0]; v.Type() {
	case TypeString:
		s := v.AsString()
		if s == "" {
			return Null, domainError("[: empty string")
		}
		return Str(s[:1]), nil
	case TypeList:
		l := v.AsList()
		if len(l) == 0 {
			return Null, domainError("[: empty list")
		}
		return l[0], nil
	default:
		return Null, typeError("[", v)
	}
}

func builtinTail(vm *VM, args []Value) (Value, error) {
	switch v := args[0]; v.Type() {
	case TypeString:
		s := v.AsString()
		if s == "" {
			return Null, domainError("]: empty string")
		}
		return Str(s[1:]), nil
	case TypeList:
		l := v.AsList()
		if len(l) == 0 {
			return Null, domainError("]: empty list")
		}
		return List(l[1:len(l):len(l)]), nil
	default:
		return Null, typeError("]", v)
	}
}

func builtinAdd(vm *VM, args []Value) (Value, error) {
	lhs, rhs := args[0], args[1]
	switch lhs.Type() {
	case TypeInteger:
		n, err := rhs.ToInteger()
		if err != nil {
			return Null, err
		}
		r, ok := addInt(lhs.AsInt(), n)
		if !ok {
			return Null, overflowError("+")
		}
		return Int(r), nil
	case TypeFloat:
		if rhs.Type() != TypeFloat {
			return Null, typeError("+", rhs)
		}
		return Float(lhs.AsFloat() + rhs.AsFloat()), nil
	case TypeString:
		s, err := rhs.ToString()
		if err != nil {
			return Null, err
		}
		if s == "" {
			return lhs, nil
		}
		return Str(lhs.AsString() + s), nil
	case TypeList:
		r, err := vm.toList("+", rhs)
		if err != nil {
			return Null, err
		}
		l := lhs.AsList()
		if len(r) == 0 {
			return lhs, nil
		}
		out := make([]Value, 0, len(l)+len(r))
		out = append(out, l...)
		out = append(out, r...)
		return List(out), nil
	default:
		return Null, typeError("+", lhs)
	}
}

func builtinSubtract(vm *VM, args []Value) (Value, error) {
	lhs, rhs := args[0], args[1]
	switch lhs.Type() {
	case TypeInteger:
		n, err := rhs.ToInteger()
		if err != nil {
			return Null, err
		}
		r, ok := subInt(lhs.AsInt(), n)
		if !ok {
			return Null, overflowError("-")
		}
		return Int(r), nil
	case TypeFloat:
		if rhs.Type() != TypeFloat {
			return Null, typeError("-", rhs)
		}
		return Float(lhs.AsFloat() - rhs.AsFloat()), nil
	default:
		return Null, typeError("-", lhs)
	}
}

func repeatCount(fn string, rhs Value, length int) (int, error) {
	n, err := rhs.ToInteger()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, domainError("%s: negative repeat count %d", fn, n)
	}
	if length > 0 && n > maxContainerLen/int64(length) {
		return 0, domainError("%s: result too large", fn)
	}
	return int(n), nil
}

func builtinMultiply(vm *VM, args []Value) (Value, error) {
	lhs, rhs := args[0], args[1]
	switch lhs.Type() {
	case TypeInteger:
		n, err := rhs.ToInteger()
		if err != nil {
			return Null, err
		}
		r, ok := mulInt(lhs.AsInt(), n)
		if !ok {
			return Null, overflowError("*")
		}
		return Int(r), nil
	case TypeFloat:
		if rhs.Type() != TypeFloat {
			return Null, typeError("*", rhs)
		}
		return Float(lhs.AsFloat() * rhs.AsFloat()), nil
	case TypeString:
		s := lhs.AsString()
		count, err := repeatCount("*", rhs, len(s))
		if err != nil {
			return Null, err
		}
		return Str(strings.Repeat(s, count)), nil
	case TypeList:
		l := lhs.AsList()
		count, err := repeatCount("*", rhs, len(l))
		if err != nil {
			return Null, err
		}
		if len(l) == 0 || count == 0 {
			return EmptyList, nil
		}
		out := make([]Value, 0, len(l)*count)
		for i := 0; i < count; i++ {
			out = append(out, l...)
		}
		return List(out), nil
	default:
		return Null, typeError("*", lhs)
	}
}

func builtinDivide(vm *VM, args []Value) (Value, error) {
	lhs, rhs := args[0], args[1]
	switch lhs.Type() {
	case TypeInteger:
		n, err := rhs.ToInteger()
		if err != nil {
			return Null, err
		}
		if n == 0 {
			return Null, domainError("/: division by zero")
		}
		if n == -1 && lhs.AsInt() == math.MinInt64 {
			return Null, overflowError("/")
		}
		return Int(lhs.AsInt() / n), nil
	case TypeFloat:
		if rhs.Type() != TypeFloat {
			return Null, typeError("/", rhs)
		}
		if rhs.AsFloat() == 0 {
			return Null, domainError("/: division by zero")
		}
		return Float(lhs.AsFloat() / rhs.AsFloat()), nil
	default:
		return Null, typeError("/", lhs)
	}
}

func builtinModulo(vm *VM, args []Value) (Value, error) {
	lhs, rhs := args[0], args[1]
	switch lhs.Type() {
	case TypeInteger:
		n, err := rhs.ToInteger()
		if err != nil {
			return Null, err
		}
		if n == 0 {
			return Null, domainError("%%: modulo by zero")
		}
		return Int(lhs.AsInt() % n), nil
	case TypeFloat:
		if rhs.Type() != TypeFloat {
			return Null, typeError("%", rhs)
		}
		if rhs.AsFloat() == 0 {
			return Null, domainError("%%: modulo by zero")
		}
		return Float(math.Mod(lhs.AsFloat(), rhs.AsFloat())), nil
	default:
		return Null, typeError("%", lhs)
	}
}

func builtinPower(vm *VM, args []Value) (Value, error) {
	lhs, rhs := args[0], args[1]
	switch lhs.Type() {
	case TypeInteger:
		exp, err := rhs.ToInteger()
		if err != nil {
			return Null, err
		}
		if exp < 0 {
			r, err := powNegative(lhs.AsInt(), exp)
			if err != nil {
				return Null, err
			}
			return Int(r), nil
		}
		r, ok := powInt(lhs.AsInt(), exp)
		if !ok {
			return Null, overflowError("^")
		}
		return Int(r), nil
	case TypeFloat:
		if rhs.Type() != TypeFloat {
			return Null, typeError("^", rhs)
		}
		return Float(math.Pow(lhs.AsFloat(), rhs.AsFloat())), nil
	case TypeList:
		sep, err := rhs.ToString()
		if err != nil {
			return Null, err
		}
		elems := lhs.AsList()
		parts := make([]string, len(elems))
		for i, e := range elems {
			if parts[i], err = e.ToString(); err != nil {
				return Null, err
			}
		}
		return Str(strings.Join(parts, sep)), nil
	default:
		return Null, typeError("^", lhs)
	}
}

func builtinLess(vm *VM, args []Value) (Value, error) {
	c, err := Compare("<", args[0], args[1])
	if err != nil {
		return Null, err
	}
	return Bool(c < 0), nil
}

func builtinGreater(vm *VM, args []Value) (Value, error) {
	c, err := Compare(">", args[0], args[1])
	if err != nil {
		return Null, err
	}
	return Bool(c > 0), nil
}

func builtinEquals(vm *VM, args []Value) (Value, error) {
	eq, err := EqualValues(args[0], args[1])
	if err != nil {
		return Null, err
	}
	return Bool(eq), nil
}

// sliceBounds validates start and length against a container of size n.
// With extensions a negative start counts back from the end.
func (vm *VM) sliceBounds(fn string, n int, startV, lengthV Value) (int, int, error) {
	start, err := startV.ToInteger()
	if err != nil {
		return 0, 0, err
	}
	if start < 0 && vm.features.Extensions {
		start += int64(n)
	}
	length, err := lengthV.ToInteger()
	if err != nil {
		return 0, 0, err
	}
	if start < 0 {
		return 0, 0, domainError("%s: negative start %d", fn, start)
	}
	if length < 0 {
		return 0, 0, domainError("%s: negative length %d", fn, length)
	}
	if start > int64(n) || length > int64(n)-start {
		return 0, 0, NewRuntimeError(KindIndexOutOfRange,
			fmt.Sprintf("%s: range %d..%d out of bounds for length %d", fn, start, start+length, n))
	}
	return int(start), int(start + length), nil
}

func builtinGet(vm *VM, args []Value) (Value, error) {
	switch coll := args[0]; coll.Type() {
	case TypeString:
		s := coll.AsString()
		lo, hi, err := vm.sliceBounds("GET", len(s), args[1], args[2])
		if err != nil {
			return Null, err
		}
		return Str(s[lo:hi]), nil
	case TypeList:
		l := coll.AsList()
		lo, hi, err := vm.sliceBounds("GET", len(l), args[1], args[2])
		if err != nil {
			return Null, err
		}
		return List(l[lo:hi:hi]), nil
	default:
		return Null, typeError("GET", coll)
	}
}

func builtinSet(vm *VM, args []Value) (Value, error) {
	switch coll := args[0]; coll.Type() {
	case TypeString:
		s := coll.AsString()
		lo, hi, err := vm.sliceBounds("SET", len(s), args[1], args[2])
		if err != nil {
			return Null, err
		}
		repl, err := args[3].ToString()
		if err != nil {
			return Null, err
		}
		return Str(s[:lo] + repl + s[hi:]), nil
	case TypeList:
		l := coll.AsList()
		lo, hi, err := vm.sliceBounds("SET", len(l), args[1], args[2])
		if err != nil {
			return Null, err
		}
		repl, err := vm.toList("SET", args[3])
		if err != nil {
			return Null, err
		}
		out := make([]Value, 0, len(l)-(hi-lo)+len(repl))
		out = append(out, l[:lo]...)
		out = append(out, repl...)
		out = append(out, l[hi:]...)
		return List(out), nil
	default:
		return Null, typeError("SET", coll)
	}
}

func builtinValue(vm *VM, args []Value) (Value, error) {
	name, err := args[0].ToString()
	if err != nil {
		return Null, err
	}
	return vm.lookupVariable(name)
}

// builtinHandle runs its first block; a runtime error is turned into its
// message, stored in `_`, and the second block runs instead. Exit signals
// and fatal errors are never intercepted.
func builtinHandle(vm *VM, args []Value) (Value, error) {
	v, err := vm.CallValue(args[0])
	if err == nil {
		return v, nil
	}
	kerr, ok := AsKnightError(err)
	if !ok || kerr.Type != ErrorRuntime {
		return Null, err
	}
	if err := vm.assignVariable(handleVariable, Str(kerr.Msg)); err != nil {
		return Null, err
	}
	return vm.CallValue(args[1])
}

func builtinEval(vm *VM, args []Value) (Value, error) {
	src, err := args[0].ToString()
	if err != nil {
		return Null, err
	}
	return vm.Eval("<eval>", src)
}

// builtinUse runs another source file in the current environment.
func builtinUse(vm *VM, args []Value) (Value, error) {
	name, err := args[0].ToString()
	if err != nil {
		return Null, err
	}
	if vm.ReadFile == nil {
		return Null, NewRuntimeError(KindIO, fmt.Sprintf("USE %s: file access is not available", name))
	}
	src, err := vm.ReadFile(name)
	if err != nil {
		return Null, NewRuntimeError(KindIO, fmt.Sprintf("USE %s: %v", name, err))
	}
	return vm.Eval(name, src)
}

func builtinYeet(vm *VM, args []Value) (Value, error) {
	msg, err := args[0].ToString()
	if err != nil {
		return Null, err
	}
	return Null, NewRuntimeError(KindUser, msg)
}

func builtinSrand(vm *VM, args []Value) (Value, error) {
	seed, err := args[0].ToInteger()
	if err != nil {
		return Null, err
	}
	vm.Seed(seed)
	return Null, nil
}

func builtinRange(vm *VM, args []Value) (Value, error) {
	start, err := args[0].ToInteger()
	if err != nil {
		return Null, err
	}
	stop, err := args[1].ToInteger()
	if err != nil {
		return Null, err
	}
	if start > stop {
		return Null, domainError("XRANGE: start %d is after stop %d", start, stop)
	}
	if n, ok := subInt(stop, start); !ok || n > maxContainerLen {
		return Null, domainError("XRANGE: range too large")
	}
	out := make([]Value, 0, stop-start)
	for i := start; i < stop; i++ {
		out = append(out, Int(i))
	}
	return List(out), nil
}

func builtinReverse(vm *VM, args []Value) (Value, error) {
	switch v := args[0]; v.Type() {
	case TypeString:
		b := []byte(v.AsString())
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
		return Str(string(b)), nil
	case TypeList:
		l := v.AsList()
		out := make([]Value, len(l))
		for i, e := range l {
			out[len(l)-1-i] = e
		}
		return List(out), nil
	default:
		return Null, typeError("XREVERSE", v)
	}
}
