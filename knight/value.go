package knight

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeBoolean
	TypeInteger
	TypeFloat
	TypeString
	TypeList
	TypeBlock
	TypeCustom
)

func (t ValueType) String() string {
	return []string{
		"Null",
		"Boolean",
		"Integer",
		"Float",
		"String",
		"List",
		"Block",
		"Custom",
	}[t]
}

// Value is the tagged runtime datum. Scalars live in bits; heap-backed
// variants keep a shared pointer in ref and are never mutated once built,
// so copying a Value is always O(1).
type Value struct {
	typ  ValueType
	bits int64
	ref  any
}

type textObj struct {
	s string
}

type listObj struct {
	elems []Value
}

// Block is a deferred computation: a range of instructions in the program
// that created it. It captures no variables.
type Block struct {
	program *Program
	index   int
}

// Custom is the capability contract for extension-defined values.
type Custom interface {
	TypeName() string
	String() string
	Compare(other Value) (int, error)
	Call(vm *VM) (Value, error)
}

var (
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, bits: 1}
	False     = Value{typ: TypeBoolean}
	EmptyList = Value{typ: TypeList, ref: &listObj{}}
	emptyText = Value{typ: TypeString, ref: &textObj{}}
)

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Int(i int64) Value {
	return Value{typ: TypeInteger, bits: i}
}

func Float(f float64) Value {
	return Value{typ: TypeFloat, bits: int64(math.Float64bits(f))}
}

func Str(s string) Value {
	if s == "" {
		return emptyText
	}
	return Value{typ: TypeString, ref: &textObj{s: s}}
}

// List takes ownership of elems; the caller must not modify it afterwards.
func List(elems []Value) Value {
	if len(elems) == 0 {
		return EmptyList
	}
	return Value{typ: TypeList, ref: &listObj{elems: elems}}
}

func NewCustom(c Custom) Value {
	return Value{typ: TypeCustom, ref: c}
}

func newBlock(p *Program, index int) Value {
	return Value{typ: TypeBlock, ref: &Block{program: p, index: index}}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsNull() bool { return v.typ == TypeNull }

func (v Value) AsBool() bool { return v.bits != 0 }

func (v Value) AsInt() int64 { return v.bits }

func (v Value) AsFloat() float64 { return math.Float64frombits(uint64(v.bits)) }

func (v Value) AsString() string {
	if t, ok := v.ref.(*textObj); ok {
		return t.s
	}
	return ""
}

// AsList returns the shared backing elements. Callers must treat the slice
// as read-only.
func (v Value) AsList() []Value {
	if l, ok := v.ref.(*listObj); ok {
		return l.elems
	}
	return nil
}

func (v Value) AsBlock() *Block {
	b, _ := v.ref.(*Block)
	return b
}

func (v Value) AsCustom() Custom {
	c, _ := v.ref.(Custom)
	return c
}

func (v Value) TypeName() string {
	if v.typ == TypeCustom {
		if c := v.AsCustom(); c != nil {
			return c.TypeName()
		}
	}
	return v.typ.String()
}

// Info returns the compile-time description of the block's range.
func (b *Block) Info() BlockInfo {
	return b.program.Blocks[b.index]
}

func (b *Block) Program() *Program {
	return b.program
}

func (b *Block) sameAs(other *Block) bool {
	return b.program == other.program && b.index == other.index
}

// maxNesting bounds how deeply nested lists may be walked by equality,
// comparison and conversion.
const maxNesting = 10000

func nestingError(fn string) *KnightError {
	return NewRuntimeError(KindStackOverflow, fmt.Sprintf("%s: lists nested deeper than %d", fn, maxNesting))
}

// Equal is structural equality without coercion. Lists nested too deeply to
// compare are reported unequal; EqualValues reports them as an error.
func Equal(a, b Value) bool {
	eq, err := equalTo(a, b, 0)
	return err == nil && eq
}

// EqualValues is Equal for the ? operator.
func EqualValues(a, b Value) (bool, error) {
	return equalTo(a, b, 0)
}

func equalTo(a, b Value, depth int) (bool, error) {
	if a.typ != b.typ {
		return false, nil
	}
	switch a.typ {
	case TypeNull:
		return true, nil
	case TypeBoolean, TypeInteger:
		return a.bits == b.bits, nil
	case TypeFloat:
		return a.AsFloat() == b.AsFloat(), nil
	case TypeString:
		return a.AsString() == b.AsString(), nil
	case TypeList:
		if depth >= maxNesting {
			return false, nestingError("?")
		}
		la, lb := a.AsList(), b.AsList()
		if len(la) != len(lb) {
			return false, nil
		}
		for i := range la {
			eq, err := equalTo(la[i], lb[i], depth+1)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case TypeBlock:
		return a.AsBlock().sameAs(b.AsBlock()), nil
	case TypeCustom:
		c, err := a.AsCustom().Compare(b)
		return err == nil && c == 0, nil
	}
	return false, nil
}

// String renders the value the way OUTPUT would; blocks render as a
// placeholder since they have no string conversion.
func (v Value) String() string {
	if v.typ == TypeBlock {
		return "<block " + v.AsBlock().Info().Name + ">"
	}
	s, err := v.ToString()
	if err != nil {
		return "<" + v.TypeName() + ">"
	}
	return s
}

// Dump renders the debugging representation used by DUMP.
func Dump(v Value) (string, error) {
	var sb strings.Builder
	if err := dumpTo(&sb, v, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func dumpTo(sb *strings.Builder, v Value, depth int) error {
	switch v.typ {
	case TypeNull:
		sb.WriteString("null")
	case TypeBoolean:
		sb.WriteString(strconv.FormatBool(v.AsBool()))
	case TypeInteger:
		sb.WriteString(strconv.FormatInt(v.AsInt(), 10))
	case TypeFloat:
		sb.WriteString(formatFloat(v.AsFloat()))
	case TypeString:
		sb.WriteByte('"')
		str := v.AsString()
		for i := 0; i < len(str); i++ {
			switch c := str[i]; c {
			case '\\':
				sb.WriteString(`\\`)
			case '"':
				sb.WriteString(`\"`)
			case '\n':
				sb.WriteString(`\n`)
			case '\r':
				sb.WriteString(`\r`)
			case '\t':
				sb.WriteString(`\t`)
			default:
				sb.WriteByte(c)
			}
		}
		sb.WriteByte('"')
	case TypeList:
		if depth >= maxNesting {
			return nestingError("DUMP")
		}
		sb.WriteByte('[')
		for i, e := range v.AsList() {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := dumpTo(sb, e, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case TypeCustom:
		sb.WriteString(v.AsCustom().String())
	default:
		return typeError("DUMP", v)
	}
	return nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}
