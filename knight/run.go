package knight

import (
	"fmt"
	"strings"
)

// Parse lexes and parses source into a tree.
func Parse(fileName, source string, table *DispatchTable) (ASTNode, error) {
	lexer := NewLexer(fileName, source, table.Features())
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, err
	}

	parser := NewParser(tokens, table)
	tree := parser.Parse()
	if tree.IsErr() {
		return nil, tree.Err
	}
	return tree.Value, nil
}

// CompileSource parses and compiles source with c.
func CompileSource(c *Compiler, fileName, source string) (*Program, error) {
	tree, err := Parse(fileName, source, c.table)
	if err != nil {
		return nil, err
	}
	return c.Compile(tree)
}

// RunSource compiles source for vm's dispatch table and runs it in a fresh
// environment.
func RunSource(vm *VM, fileName, source string) (Value, error) {
	program, err := CompileSource(NewCompiler(vm.Table()), fileName, source)
	if err != nil {
		return Null, err
	}
	return vm.Run(program, NewEnvironment(program))
}

func Disassemble(p *Program) string {
	var parts []string

	parts = append(parts, "\n--------- Constants ---------\n")
	if len(p.Constants) > 0 {
		for i, c := range p.Constants {
			repr, err := Dump(c)
			if err != nil {
				repr = c.String()
			}
			parts = append(parts, fmt.Sprintf("%04d: %s (%s)\n", i, repr, c.TypeName()))
		}
	} else {
		parts = append(parts, "Constants list is empty.\n")
	}

	parts = append(parts, "\n--------- Variables ---------\n")
	for slot, name := range p.Symbols.Names() {
		parts = append(parts, fmt.Sprintf("%04d: %s\n", slot, name))
	}

	starts := make(map[int]int, len(p.Blocks))
	for i, b := range p.Blocks {
		starts[b.Start] = i
	}

	parts = append(parts, "\n--------- Disassembled Bytecode ---------\n")
	for i, instr := range p.Code {
		if b, ok := starts[i]; ok {
			parts = append(parts, fmt.Sprintf("      ; block %d %s\n", b, p.blockName(b)))
		}
		line := fmt.Sprintf("%04d: %-18s", i, instr.Op.String())
		switch {
		case instr.Op.IsJump():
			line += fmt.Sprintf("%d (-> %04d)", instr.Operand, i+1+instr.Operand)
		case instr.Op == OpConst:
			repr, err := Dump(p.Constants[instr.Operand])
			if err != nil {
				repr = "?"
			}
			line += fmt.Sprintf("%d (%s)", instr.Operand, repr)
		case instr.Op == OpGetSlot || instr.Op == OpSetSlot:
			line += fmt.Sprintf("%d (%s)", instr.Operand, p.Symbols.Name(instr.Operand))
		case instr.Op == OpMakeBlock:
			line += fmt.Sprintf("%d (%s)", instr.Operand, p.blockName(instr.Operand))
		case instr.Op == OpDispatch:
			name := "?"
			if b := p.table.Entry(instr.Operand); b != nil {
				name = b.Name
			}
			line += fmt.Sprintf("%s/%d", name, instr.Arity)
		}
		parts = append(parts, strings.TrimRight(line, " ")+"\n")
	}
	return strings.Join(parts, "")
}
