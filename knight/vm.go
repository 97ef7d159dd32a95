package knight

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

type CallFrame struct {
	ReturnIP  int
	StackBase int
	Program   *Program
	Block     int
	CallSite  *Token
}

const (
	InitialStackCapacity = 256
	MaxCallDepth         = 100000
)

// mainFrame marks the top-level range in CallFrame.Block; evalFrame marks
// the top-level range of a program started by Eval.
const (
	mainFrame = -1
	evalFrame = -2
)

// argvVariable receives the command-line arguments when extensions are on.
const argvVariable = "argv"

type VM struct {
	mu       sync.Mutex
	table    *DispatchTable
	features Features

	program *Program
	code    []Instruction
	env     *Environment
	ip      int
	stack   []Value
	sp      int // Stack pointer
	frames  []CallFrame

	Input  LineReader
	Output LineWriter
	// ReadFile backs USE. When nil, USE fails with an io error.
	ReadFile func(name string) (string, error)

	args    []Value
	argsEnv *Environment

	rng         *rand.Rand
	domain      *EpochDomain
	participant *Participant
	dynamic     map[string]Value
	log         commonlog.Logger
}

func NewVM(table *DispatchTable) *VM {
	return NewVMInDomain(table, DefaultEpochDomain())
}

// NewVMInDomain creates a VM whose stack buffers are recycled through domain.
func NewVMInDomain(table *DispatchTable, domain *EpochDomain) *VM {
	vm := &VM{
		table:       table,
		features:    table.Features(),
		frames:      make([]CallFrame, 0, 16),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		domain:      domain,
		participant: domain.Register(),
		dynamic:     make(map[string]Value),
		log:         commonlog.GetLogger("knight.vm"),
	}
	vm.stack = domain.Acquire(InitialStackCapacity)
	vm.stack = vm.stack[:cap(vm.stack)]
	if vm.features.Multithreaded {
		vm.log.Warningf("multithreaded is reserved and has no effect")
	}
	return vm
}

// Close retires the VM's buffers to its epoch domain.
func (vm *VM) Close() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.domain.Retire(vm.stack)
	vm.stack = nil
	vm.sp = 0
	vm.domain.Unregister(vm.participant)
	vm.domain.TryAdvance()
}

func (vm *VM) Seed(seed int64) {
	vm.rng = rand.New(rand.NewSource(seed))
}

// SetArgs makes args visible to programs as the list variable argv. It only
// takes effect with the extensions feature, and binds once per environment.
func (vm *VM) SetArgs(args []string) {
	vm.args = make([]Value, len(args))
	for i, a := range args {
		vm.args[i] = Str(a)
	}
	vm.argsEnv = nil
}

func (vm *VM) bindArgs(p *Program, env *Environment) error {
	if vm.args == nil || !vm.features.Extensions || vm.argsEnv == env {
		return nil
	}
	vm.argsEnv = env
	argv := List(vm.args)
	if slot, ok := p.Symbols.Lookup(argvVariable); ok && slot < env.Len() {
		return env.Set(slot, argv)
	}
	vm.dynamic[argvVariable] = argv
	return nil
}

func (vm *VM) Table() *DispatchTable {
	return vm.table
}

// Environment returns the environment of the current or most recent run.
func (vm *VM) Environment() *Environment {
	return vm.env
}

// Run executes p against env and returns the program's value. A QUIT
// surfaces as an *ExitSignal error after every frame has been unwound.
func (vm *VM) Run(p *Program, env *Environment) (Value, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if p.table != vm.table {
		return Null, NewFatalError("program was compiled against a different dispatch table", Loc{FileName: p.Name})
	}
	if env.Len() < p.SlotCount || env.symbols != p.Symbols {
		return Null, NewFatalError(fmt.Sprintf("environment does not fit program %s", p.Name), Loc{FileName: p.Name})
	}
	if vm.stack == nil {
		return Null, NewFatalError("VM is closed", Loc{})
	}

	vm.participant.Pin()
	defer func() {
		vm.participant.Unpin()
		vm.domain.TryAdvance()
	}()

	if err := vm.bindArgs(p, env); err != nil {
		return Null, err
	}
	vm.env = env
	vm.sp = 0
	vm.frames = vm.frames[:0]
	vm.switchProgram(p)
	vm.ip = 0
	vm.frames = append(vm.frames, CallFrame{ReturnIP: -1, Program: p, Block: mainFrame})
	vm.log.Debugf("running %s", p.Name)

	result := vm.run(len(vm.frames))
	if result.IsErr() {
		vm.reset()
		if exit, ok := result.Err.(*ExitSignal); ok {
			vm.log.Debugf("%s exited with status %d", p.Name, exit.Code)
		}
		return Null, result.Err
	}
	if vm.sp != 0 {
		n := vm.sp
		vm.reset()
		return Null, NewFatalError(fmt.Sprintf("%d values left on the stack", n), Loc{FileName: p.Name})
	}
	return result.Value, nil
}

func (vm *VM) reset() {
	clear(vm.stack[:vm.sp])
	vm.sp = 0
	vm.frames = vm.frames[:0]
}

func (vm *VM) switchProgram(p *Program) {
	vm.program = p
	vm.code = p.Code
}

// CallValue evaluates v from inside a running operator: a block runs to
// completion in a nested frame, a custom value is asked to call itself, and
// anything else evaluates to itself. On error the frame stack is restored,
// so an operator may recover and keep going.
func (vm *VM) CallValue(v Value) (Value, error) {
	if vm.program == nil || len(vm.frames) == 0 {
		return Null, NewFatalError("CallValue used outside of a run", Loc{})
	}
	switch v.Type() {
	case TypeBlock:
		return vm.runNested(func(callSite *Token) error {
			return vm.enterBlock(v.AsBlock(), callSite, -1)
		})
	case TypeCustom:
		return v.AsCustom().Call(vm)
	}
	if vm.features.Compliance {
		return Null, typeError("CALL", v)
	}
	return v, nil
}

// Eval compiles source against the running program's symbol table and runs
// it in the current environment, as if it were a block called from here.
// Blocks it defines stay callable by the caller.
func (vm *VM) Eval(fileName, source string) (Value, error) {
	if vm.program == nil || len(vm.frames) == 0 {
		return Null, NewFatalError("Eval used outside of a run", Loc{})
	}
	p, err := CompileSource(NewCompiler(vm.table).WithSymbols(vm.program.Symbols), fileName, source)
	if err != nil {
		return Null, err
	}
	before := vm.env.Len()
	if err := vm.env.Extend(p); err != nil {
		return Null, NewFatalError(err.Error(), Loc{FileName: fileName})
	}
	// Names first written through VALUE-style side storage now have slots.
	for slot := before; slot < vm.env.Len(); slot++ {
		name := p.Symbols.Name(slot)
		if v, ok := vm.dynamic[name]; ok {
			if err := vm.env.Set(slot, v); err != nil {
				return Null, err
			}
			delete(vm.dynamic, name)
		}
	}
	return vm.runNested(func(callSite *Token) error {
		if len(vm.frames) >= MaxCallDepth {
			return NewRuntimeError(KindStackOverflow, fmt.Sprintf("call depth exceeded %d", MaxCallDepth))
		}
		vm.frames = append(vm.frames, CallFrame{
			ReturnIP:  -1,
			StackBase: vm.sp,
			Program:   p,
			Block:     evalFrame,
			CallSite:  callSite,
		})
		vm.switchProgram(p)
		vm.ip = 0
		return nil
	})
}

// runNested pushes a frame with enter, runs it to completion and returns to
// the caller's position. On error the frame stack is unwound to where it was.
func (vm *VM) runNested(enter func(callSite *Token) error) (Value, error) {
	savedIP, savedProgram := vm.ip, vm.program
	depth, base := len(vm.frames), vm.sp
	var callSite *Token
	if vm.ip > 0 && vm.ip <= len(vm.code) {
		callSite = vm.code[vm.ip-1].Token
	}
	if err := enter(callSite); err != nil {
		return Null, err
	}
	result := vm.run(len(vm.frames))
	vm.ip = savedIP
	vm.switchProgram(savedProgram)
	if result.IsErr() {
		vm.frames = vm.frames[:depth]
		clear(vm.stack[base:vm.sp])
		vm.sp = base
		return Null, result.Err
	}
	return result.Value, nil
}

func (vm *VM) enterBlock(b *Block, callSite *Token, returnIP int) error {
	if b.program != vm.program && b.program.Symbols != vm.program.Symbols {
		return NewFatalError("block belongs to a program with different variable slots", Loc{})
	}
	if len(vm.frames) >= MaxCallDepth {
		return NewRuntimeError(KindStackOverflow, fmt.Sprintf("call depth exceeded %d", MaxCallDepth))
	}
	vm.frames = append(vm.frames, CallFrame{
		ReturnIP:  returnIP,
		StackBase: vm.sp,
		Program:   b.program,
		Block:     b.index,
		CallSite:  callSite,
	})
	vm.switchProgram(b.program)
	vm.ip = b.Info().Start
	return nil
}

func (vm *VM) push(value Value) {
	if vm.sp >= len(vm.stack) {
		vm.growStack()
	}
	vm.stack[vm.sp] = value
	vm.sp++
}

// growStack moves the operand stack to a larger buffer and retires the old
// one to the epoch domain.
func (vm *VM) growStack() {
	old := vm.stack
	grown := vm.domain.Acquire(max(2*len(old), InitialStackCapacity))
	grown = grown[:cap(grown)]
	copy(grown, old[:vm.sp])
	vm.stack = grown
	vm.domain.Retire(old)
}

func (vm *VM) pop() (Value, Error) {
	if vm.sp <= vm.frames[len(vm.frames)-1].StackBase {
		return Null, vm.fatalError("stack underflow, cannot pop value")
	}
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = Value{}
	return v, nil
}

func (vm *VM) peek() (Value, Error) {
	if vm.sp <= vm.frames[len(vm.frames)-1].StackBase {
		return Null, vm.fatalError("stack underflow, cannot peek value")
	}
	return vm.stack[vm.sp-1], nil
}

func (vm *VM) run(targetFrameDepth int) Result[Value] {
	for {
		if vm.ip < 0 || vm.ip >= len(vm.code) {
			return ResErr[Value](vm.fatalError("instruction pointer %d outside of program", vm.ip))
		}

		currInstr := &vm.code[vm.ip]
		vm.ip++
		currentTok := currInstr.Token

		switch currInstr.Op {
		case OpConst:
			vm.push(vm.program.Constants[currInstr.Operand])
		case OpGetSlot:
			v, err := vm.env.Get(currInstr.Operand)
			if err != nil {
				return vm.fail(err, currentTok)
			}
			vm.push(v)
		case OpSetSlot:
			v, err := vm.peek()
			if err != nil {
				return ResErr[Value](err)
			}
			if err := vm.env.Set(currInstr.Operand, v); err != nil {
				return vm.fail(err, currentTok)
			}
		case OpMakeBlock:
			vm.push(vm.program.blockValues[currInstr.Operand])
		case OpPop:
			if _, err := vm.pop(); err != nil {
				return ResErr[Value](err)
			}
		case OpDup:
			v, err := vm.peek()
			if err != nil {
				return ResErr[Value](err)
			}
			vm.push(v)
		case OpJump:
			vm.ip += currInstr.Operand
		case OpJumpIfFalse, OpJumpIfTrue:
			condition, err := vm.pop()
			if err != nil {
				return ResErr[Value](err)
			}
			truthy, cerr := condition.ToBoolean()
			if cerr != nil {
				return vm.fail(cerr, currentTok)
			}
			if truthy == (currInstr.Op == OpJumpIfTrue) {
				vm.ip += currInstr.Operand
			}
		case OpCall:
			callee, err := vm.pop()
			if err != nil {
				return ResErr[Value](err)
			}
			switch callee.Type() {
			case TypeBlock:
				if err := vm.enterBlock(callee.AsBlock(), currentTok, vm.ip); err != nil {
					return vm.fail(err, currentTok)
				}
			case TypeCustom:
				v, err := callee.AsCustom().Call(vm)
				if err != nil {
					return vm.fail(err, currentTok)
				}
				vm.push(v)
			default:
				if vm.features.Compliance {
					return vm.fail(typeError("CALL", callee), currentTok)
				}
				vm.push(callee)
			}
		case OpReturn:
			result, err := vm.pop()
			if err != nil {
				return ResErr[Value](err)
			}
			frame := vm.frames[len(vm.frames)-1]
			if vm.sp != frame.StackBase {
				return ResErr[Value](vm.fatalError("stack imbalance on return: %d values left", vm.sp-frame.StackBase))
			}
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) < targetFrameDepth {
				return ResOk(result)
			}
			vm.switchProgram(vm.frames[len(vm.frames)-1].Program)
			vm.ip = frame.ReturnIP
			vm.push(result)
		case OpDispatch:
			if err := vm.dispatch(currInstr); err != nil {
				return vm.fail(err, currentTok)
			}
		default:
			return ResErr[Value](vm.fatalError("unknown opcode %s", currInstr.Op))
		}
	}
}

func (vm *VM) dispatch(instr *Instruction) error {
	b := vm.table.Entry(instr.Operand)
	if b == nil || b.Fn == nil || b.Arity != instr.Arity {
		return vm.fatalError("dispatch entry %d does not take %d operands", instr.Operand, instr.Arity)
	}
	if vm.sp-vm.frames[len(vm.frames)-1].StackBase < b.Arity {
		return vm.fatalError("%s needs %d operands, stack has %d", b.Name, b.Arity, vm.sp-vm.frames[len(vm.frames)-1].StackBase)
	}

	var argBuf [maxArity]Value
	args := argBuf[:b.Arity]
	copy(args, vm.stack[vm.sp-b.Arity:vm.sp])
	clear(vm.stack[vm.sp-b.Arity : vm.sp])
	vm.sp -= b.Arity

	v, err := b.Fn(vm, args)
	if err != nil {
		return err
	}
	if v.Type() == TypeCustom && !vm.features.CustomTypes {
		return vm.fatalError("%s produced a custom value without the custom-types feature", b.Name)
	}
	vm.push(v)
	return nil
}

// fail attaches position and, with the stacktrace feature, the frame stack
// to a runtime error. Exit signals pass through untouched.
func (vm *VM) fail(err error, tok *Token) Result[Value] {
	if exit, ok := AsExit(err); ok {
		return ResErr[Value](exit)
	}
	kerr, ok := AsKnightError(err)
	if !ok {
		kerr = NewRuntimeError(KindNone, err.Error())
	}
	if kerr.Loc.IsZero() && tok != nil {
		kerr.Loc = tok.Loc
	}
	if vm.features.Stacktrace && kerr.Type == ErrorRuntime && kerr.Trace == nil {
		kerr.Trace = vm.captureTrace()
	}
	return ResErr[Value](kerr)
}

// captureTrace lists the active frames, innermost first.
func (vm *VM) captureTrace() []Callsite {
	trace := make([]Callsite, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		site := Callsite{Block: "<main>"}
		switch f.Block {
		case mainFrame:
		case evalFrame:
			site.Block = f.Program.Name
			if site.Block == "" {
				site.Block = "<eval>"
			}
		default:
			site.Block = f.Program.blockName(f.Block)
		}
		if f.CallSite != nil {
			site.Loc = f.CallSite.Loc
		}
		trace = append(trace, site)
	}
	return trace
}

func (vm *VM) fatalError(format string, args ...any) *KnightError {
	var loc Loc
	if vm.ip > 0 && vm.ip <= len(vm.code) && vm.code[vm.ip-1].Token != nil {
		loc = vm.code[vm.ip-1].Token.Loc
	}
	return NewFatalError(fmt.Sprintf(format, args...), loc)
}

func (vm *VM) write(fn, s string) error {
	if vm.Output == nil {
		return nil
	}
	if err := vm.Output.Write(s); err != nil {
		return NewRuntimeError(KindIO, fmt.Sprintf("%s: %v", fn, err))
	}
	return nil
}

// toList converts v, refusing negative integers under compliance.
func (vm *VM) toList(fn string, v Value) ([]Value, error) {
	if vm.features.Compliance && v.Type() == TypeInteger && v.AsInt() < 0 {
		return nil, domainError("%s: cannot convert negative integer %d to a list", fn, v.AsInt())
	}
	return v.ToList()
}

// lookupVariable reads a variable by name at run time. Names the program
// never mentions live in a side table.
func (vm *VM) lookupVariable(name string) (Value, error) {
	if slot, ok := vm.program.Symbols.Lookup(name); ok && slot < vm.env.Len() {
		return vm.env.Get(slot)
	}
	if v, ok := vm.dynamic[name]; ok {
		return v, nil
	}
	if vm.features.CheckVariables {
		return Null, NewRuntimeError(KindUndefinedVariable, fmt.Sprintf("undefined variable %s", name))
	}
	return Null, nil
}

func (vm *VM) assignVariable(name string, v Value) error {
	if slot, ok := vm.program.Symbols.Lookup(name); ok && slot < vm.env.Len() {
		return vm.env.Set(slot, v)
	}
	vm.dynamic[name] = v
	return nil
}
