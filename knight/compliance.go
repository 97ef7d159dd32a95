package knight

import (
	"fmt"
	"math"
)

const (
	maxCompliantQuit   = 127
	maxCompliantRandom = 32767
	maxVariableNameLen = 127
	maxVariableCount   = 65535
	maxCompliantLength = math.MaxInt32
)

// compliancePre holds the argument checks run before an operator when the
// compliance feature is on.
var compliancePre = map[string]func(args []Value) error{
	"Q": func(args []Value) error {
		code, err := args[0].ToInteger()
		if err != nil {
			return err
		}
		if code < 0 || code > maxCompliantQuit {
			return domainError("QUIT: status %d outside 0..%d", code, maxCompliantQuit)
		}
		return nil
	},
	"%": func(args []Value) error {
		if args[0].Type() != TypeInteger {
			return nil
		}
		n, err := args[1].ToInteger()
		if err != nil {
			return err
		}
		if args[0].AsInt() < 0 || n < 0 {
			return domainError("%%: negative operand")
		}
		return nil
	},
	"^": func(args []Value) error {
		if args[0].Type() != TypeInteger {
			return nil
		}
		n, err := args[1].ToInteger()
		if err != nil {
			return err
		}
		if n < 0 {
			return domainError("^: negative exponent %d", n)
		}
		return nil
	},
	"?": func(args []Value) error {
		for _, a := range args {
			if a.Type() == TypeBlock {
				return typeError("?", a)
			}
		}
		return nil
	},
	"A": func(args []Value) error {
		if args[0].Type() != TypeInteger {
			return nil
		}
		if n := args[0].AsInt(); !isKnightChar(n) {
			return domainError("ASCII: %d is outside the Knight character set", n)
		}
		return nil
	},
}

func isKnightChar(n int64) bool {
	return n == '\t' || n == '\n' || n == '\r' || (n >= ' ' && n <= '~')
}

// withCompliance returns a copy of b whose implementation validates its
// arguments and bounds its result.
func withCompliance(b *Builtin) *Builtin {
	if b.Fn == nil {
		return b
	}
	wrapped := *b
	inner := b.Fn
	if b.Key == "R" {
		inner = builtinRandomCompliant
	}
	pre := compliancePre[b.Key]
	wrapped.Fn = func(vm *VM, args []Value) (Value, error) {
		if pre != nil {
			if err := pre(args); err != nil {
				return Null, err
			}
		}
		v, err := inner(vm, args)
		if err != nil {
			return v, err
		}
		return v, checkCompliantResult(b.Name, v)
	}
	return &wrapped
}

func checkCompliantResult(fn string, v Value) error {
	switch v.Type() {
	case TypeInteger:
		if n := v.AsInt(); n < math.MinInt32 || n > math.MaxInt32 {
			return overflowError(fn)
		}
	case TypeString:
		if len(v.AsString()) > maxCompliantLength {
			return domainError("%s: string too long", fn)
		}
	case TypeList:
		if len(v.AsList()) > maxCompliantLength {
			return domainError("%s: list too long", fn)
		}
	}
	return nil
}

func builtinRandomCompliant(vm *VM, args []Value) (Value, error) {
	return Int(vm.rng.Int63n(maxCompliantRandom + 1)), nil
}

func checkVariableName(name string) error {
	if len(name) > maxVariableNameLen {
		return fmt.Errorf("variable name %.16s... is longer than %d bytes", name, maxVariableNameLen)
	}
	return nil
}
