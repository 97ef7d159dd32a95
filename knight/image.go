package knight

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	imageMagic   = "knightvm"
	imageVersion = 1
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("knight: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type programImage struct {
	Magic     string             `cbor:"1,keyasint"`
	Version   int                `cbor:"2,keyasint"`
	Name      string             `cbor:"3,keyasint,omitempty"`
	Features  Features           `cbor:"4,keyasint"`
	Code      []instructionImage `cbor:"5,keyasint"`
	Constants []constantImage    `cbor:"6,keyasint"`
	Blocks    []blockImage       `cbor:"7,keyasint"`
	Names     []string           `cbor:"8,keyasint"`
	// Operators lists the dispatch keys used; OpDispatch operands index it.
	Operators []string `cbor:"9,keyasint"`
}

type instructionImage struct {
	_       struct{} `cbor:",toarray"`
	Op      int
	Operand int
	Arity   int
	Line    int
	Col     int
}

type constantImage struct {
	_    struct{} `cbor:",toarray"`
	Type ValueType
	Bits int64
	Str  string
}

type blockImage struct {
	_     struct{} `cbor:",toarray"`
	Start int
	End   int
	Name  string
	Line  int
	Col   int
}

// MarshalProgram serializes a compiled program to canonical CBOR.
func MarshalProgram(p *Program) ([]byte, error) {
	img := programImage{
		Magic:    imageMagic,
		Version:  imageVersion,
		Name:     p.Name,
		Features: p.Features,
		Names:    p.Symbols.Names(),
	}

	operatorIdx := make(map[int]int)
	for _, instr := range p.Code {
		ii := instructionImage{Op: int(instr.Op), Operand: instr.Operand, Arity: instr.Arity}
		if instr.Token != nil {
			ii.Line, ii.Col = instr.Token.Loc.Line, instr.Token.Loc.ColStart
		}
		if instr.Op == OpDispatch {
			idx, ok := operatorIdx[instr.Operand]
			if !ok {
				b := p.table.Entry(instr.Operand)
				if b == nil {
					return nil, fmt.Errorf("knight: marshal program: unknown operator index %d", instr.Operand)
				}
				idx = len(img.Operators)
				img.Operators = append(img.Operators, b.Key)
				operatorIdx[instr.Operand] = idx
			}
			ii.Operand = idx
		}
		img.Code = append(img.Code, ii)
	}

	for _, c := range p.Constants {
		ci := constantImage{Type: c.Type(), Bits: c.bits}
		switch c.Type() {
		case TypeString:
			ci.Str = c.AsString()
		case TypeList:
			if len(c.AsList()) != 0 {
				return nil, fmt.Errorf("knight: marshal program: only the empty list can be a constant")
			}
		case TypeBlock, TypeCustom:
			return nil, fmt.Errorf("knight: marshal program: %s constant cannot be serialized", c.TypeName())
		}
		img.Constants = append(img.Constants, ci)
	}

	for _, b := range p.Blocks {
		img.Blocks = append(img.Blocks, blockImage{Start: b.Start, End: b.End, Name: b.Name, Line: b.Loc.Line, Col: b.Loc.ColStart})
	}

	data, err := cborEncMode.Marshal(&img)
	if err != nil {
		return nil, fmt.Errorf("knight: marshal program: %w", err)
	}
	return data, nil
}

// UnmarshalProgram rebuilds a runnable program for table. The image must
// have been compiled with the same features.
func UnmarshalProgram(data []byte, table *DispatchTable) (*Program, error) {
	var img programImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("knight: unmarshal program: %w", err)
	}
	if img.Magic != imageMagic || img.Version != imageVersion {
		return nil, fmt.Errorf("knight: unmarshal program: not a version %d program image", imageVersion)
	}
	if img.Features != table.Features() {
		return nil, fmt.Errorf("knight: unmarshal program: image needs features %q, table has %q", img.Features, table.Features())
	}

	operators := make([]int, len(img.Operators))
	for i, key := range img.Operators {
		idx, ok := table.Index(key)
		if !ok {
			return nil, fmt.Errorf("knight: unmarshal program: unknown operator %s", key)
		}
		operators[i] = idx
	}

	p := &Program{
		Name:     img.Name,
		Symbols:  symbolTableFromNames(img.Names),
		Features: img.Features,
		table:    table,
	}
	p.SlotCount = p.Symbols.SlotCount()

	for _, c := range img.Constants {
		switch c.Type {
		case TypeNull, TypeBoolean, TypeInteger, TypeFloat:
			p.Constants = append(p.Constants, Value{typ: c.Type, bits: c.Bits})
		case TypeString:
			p.Constants = append(p.Constants, Str(c.Str))
		case TypeList:
			p.Constants = append(p.Constants, EmptyList)
		default:
			return nil, fmt.Errorf("knight: unmarshal program: invalid constant type %d", c.Type)
		}
	}

	for _, b := range img.Blocks {
		p.Blocks = append(p.Blocks, BlockInfo{Start: b.Start, End: b.End, Name: b.Name, Loc: Loc{FileName: img.Name, Line: b.Line, ColStart: b.Col}})
	}

	p.Code = make([]Instruction, len(img.Code))
	for i, ii := range img.Code {
		instr := Instruction{Op: OpCode(ii.Op), Operand: ii.Operand, Arity: ii.Arity}
		if _, ok := opNames[instr.Op]; !ok {
			return nil, fmt.Errorf("knight: unmarshal program: invalid opcode %d at %d", ii.Op, i)
		}
		if ii.Line > 0 {
			instr.Token = &Token{Kind: TokenFunc, Loc: Loc{FileName: img.Name, Line: ii.Line, ColStart: ii.Col}}
		}
		if err := validateOperand(p, &instr, operators, i); err != nil {
			return nil, err
		}
		p.Code[i] = instr
	}
	p.initBlocks()
	return p, nil
}

func validateOperand(p *Program, instr *Instruction, operators []int, at int) error {
	bad := func() error {
		return fmt.Errorf("knight: unmarshal program: %s operand %d out of range at %d", instr.Op, instr.Operand, at)
	}
	switch instr.Op {
	case OpConst:
		if instr.Operand < 0 || instr.Operand >= len(p.Constants) {
			return bad()
		}
	case OpGetSlot, OpSetSlot:
		if instr.Operand < 0 || instr.Operand >= p.SlotCount {
			return bad()
		}
	case OpMakeBlock:
		if instr.Operand < 0 || instr.Operand >= len(p.Blocks) {
			return bad()
		}
	case OpDispatch:
		if instr.Operand < 0 || instr.Operand >= len(operators) {
			return bad()
		}
		instr.Operand = operators[instr.Operand]
	}
	return nil
}
