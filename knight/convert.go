package knight

import (
	"math"
	"strconv"
	"strings"
)

func (v Value) ToBoolean() (bool, error) {
	switch v.typ {
	case TypeNull:
		return false, nil
	case TypeBoolean, TypeInteger:
		return v.bits != 0, nil
	case TypeFloat:
		return v.AsFloat() != 0, nil
	case TypeString:
		return v.AsString() != "", nil
	case TypeList:
		return len(v.AsList()) != 0, nil
	case TypeCustom:
		return true, nil
	}
	return false, conversionError(v, "Boolean")
}

func (v Value) ToInteger() (int64, error) {
	switch v.typ {
	case TypeNull:
		return 0, nil
	case TypeBoolean, TypeInteger:
		return v.bits, nil
	case TypeString:
		return parseLeadingInt(v.AsString())
	case TypeList:
		return int64(len(v.AsList())), nil
	}
	return 0, conversionError(v, "Integer")
}

func (v Value) ToString() (string, error) {
	return v.toString(0)
}

func (v Value) toString(depth int) (string, error) {
	switch v.typ {
	case TypeNull:
		return "", nil
	case TypeBoolean:
		return strconv.FormatBool(v.AsBool()), nil
	case TypeInteger:
		return strconv.FormatInt(v.bits, 10), nil
	case TypeFloat:
		return formatFloat(v.AsFloat()), nil
	case TypeString:
		return v.AsString(), nil
	case TypeList:
		if depth >= maxNesting {
			return "", nestingError("String")
		}
		elems := v.AsList()
		parts := make([]string, len(elems))
		for i, e := range elems {
			s, err := e.toString(depth + 1)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, "\n"), nil
	case TypeCustom:
		return v.AsCustom().String(), nil
	}
	return "", conversionError(v, "String")
}

// ToList converts without compliance checks; negative integers produce
// negated digits.
func (v Value) ToList() ([]Value, error) {
	switch v.typ {
	case TypeNull:
		return nil, nil
	case TypeBoolean:
		if v.AsBool() {
			return []Value{True}, nil
		}
		return nil, nil
	case TypeInteger:
		return integerDigits(v.bits), nil
	case TypeString:
		s := v.AsString()
		out := make([]Value, len(s))
		for i := 0; i < len(s); i++ {
			out[i] = Str(s[i : i+1])
		}
		return out, nil
	case TypeList:
		return v.AsList(), nil
	}
	return nil, conversionError(v, "List")
}

func conversionError(v Value, to string) *KnightError {
	return NewRuntimeError(KindConversion, "cannot convert "+v.TypeName()+" to "+to)
}

func integerDigits(n int64) []Value {
	if n == 0 {
		return []Value{Int(0)}
	}
	var digits []Value
	for n != 0 {
		digits = append(digits, Int(n%10))
		n /= 10
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return digits
}

func isKnightSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// parseLeadingInt reads optional whitespace, an optional sign, and as many
// decimal digits as follow. Anything else yields zero.
func parseLeadingInt(s string) (int64, error) {
	i := 0
	for i < len(s) && isKnightSpace(s[i]) {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}
	var n uint64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		d := uint64(s[i] - '0')
		if n > (limit-d)/10 {
			return 0, overflowError("string to integer conversion")
		}
		n = n*10 + d
	}
	if neg {
		return -int64(n), nil
	}
	return int64(n), nil
}

// Compare orders a and b using a's type; b is converted to match.
func Compare(fn string, a, b Value) (int, error) {
	return compare(fn, a, b, 0)
}

func compare(fn string, a, b Value, depth int) (int, error) {
	switch a.typ {
	case TypeInteger:
		rhs, err := b.ToInteger()
		if err != nil {
			return 0, err
		}
		return cmpInt(a.bits, rhs), nil
	case TypeBoolean:
		rhs, err := b.ToBoolean()
		if err != nil {
			return 0, err
		}
		return cmpInt(a.bits, boolToInt(rhs)), nil
	case TypeString:
		rhs, err := b.ToString()
		if err != nil {
			return 0, err
		}
		return strings.Compare(a.AsString(), rhs), nil
	case TypeList:
		rhs, err := b.ToList()
		if err != nil {
			return 0, err
		}
		if depth >= maxNesting {
			return 0, nestingError(fn)
		}
		lhs := a.AsList()
		for i := 0; i < len(lhs) && i < len(rhs); i++ {
			c, err := compare(fn, lhs[i], rhs[i], depth+1)
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		return cmpInt(int64(len(lhs)), int64(len(rhs))), nil
	case TypeFloat:
		if b.typ != TypeFloat {
			return 0, typeError(fn, b)
		}
		x, y := a.AsFloat(), b.AsFloat()
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case TypeCustom:
		return a.AsCustom().Compare(b)
	}
	return 0, typeError(fn, a)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
