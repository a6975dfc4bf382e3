package core

import (
	"encoding/binary"
	"fmt"
)

const MaxFrames = 1024
const StackSize = 2048

type Frame struct {
	proc         Procedure
	instructions Instructions
	ip           int
}

func newFrame(proc Procedure, instructions Instructions) *Frame {
	return &Frame{proc: proc, instructions: instructions, ip: -1}
}

// VM runs generated code. It is the single run-time context every procedure
// unit shares: one tape, one pointer, one scratch cell and one dispatch table.
type VM struct {
	procedures []Instructions

	tape    []int32
	pointer int32
	scratch int32
	table   Table

	// key of the most recent lookup, kept for diagnostics
	lastKey int32

	stack []int32
	sp    int // stack pointer

	frames      []*Frame
	framesIndex int

	context *Context
}

func NewVM(bytecode *Bytecode, context *Context) *VM {
	mainFrame := newFrame(NoProcedure, bytecode.Main)

	frames := make([]*Frame, MaxFrames)
	frames[0] = mainFrame

	return &VM{
		procedures: bytecode.Procedures,

		frames:      frames,
		framesIndex: 1,

		stack:   make([]int32, StackSize),
		sp:      0,
		context: context,
	}
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *Frame) error {
	if vm.framesIndex >= MaxFrames {
		return vm.fault(FaultStackOverflow, "call depth exceeds %d frames", MaxFrames)
	}

	vm.frames[vm.framesIndex] = f
	vm.framesIndex++

	return nil
}

func (vm *VM) popFrame() *Frame {
	vm.framesIndex--
	return vm.frames[vm.framesIndex]
}

func (vm *VM) push(v int32) error {
	if vm.sp >= StackSize {
		return vm.fault(FaultStackOverflow, "operand stack overflow")
	}

	vm.stack[vm.sp] = v
	vm.sp++

	return nil
}

func (vm *VM) pop() int32 {
	v := vm.stack[vm.sp-1]
	vm.sp--
	return v
}

// Run executes the program and returns the cell under the final pointer.
func (vm *VM) Run() (int32, error) {
	result, err := vm.run()

	if flushErr := vm.context.Flush(); err == nil && flushErr != nil {
		err = vm.fault(FaultIO, "%s", flushErr)
	}

	return result, err
}

func (vm *VM) run() (int32, error) {
	var ip int
	var ins Instructions
	var op Opcode

	for vm.currentFrame().ip < len(vm.currentFrame().instructions)-1 {
		vm.currentFrame().ip++

		ip = vm.currentFrame().ip
		ins = vm.currentFrame().instructions
		op = Opcode(ins[ip])

		switch op {
		case OpNewTape:
			size := int(vm.readU32(true))
			vm.tape = make([]int32, size)
		case OpNewTable:
			vm.table = NewHashTable()
		case OpConstant:
			value := int32(vm.readU32(true))

			if err := vm.push(value); err != nil {
				return 0, err
			}
		case OpLoadPointer:
			if err := vm.push(vm.pointer); err != nil {
				return 0, err
			}
		case OpStorePointer:
			vm.pointer = vm.pop()
		case OpLoadScratch:
			if err := vm.push(vm.scratch); err != nil {
				return 0, err
			}
		case OpStoreScratch:
			vm.scratch = vm.pop()
		case OpLoadCell:
			index := vm.pop()

			if err := vm.checkBounds(index); err != nil {
				return 0, err
			}

			if err := vm.push(vm.tape[index]); err != nil {
				return 0, err
			}
		case OpStoreCell:
			value := vm.pop()
			index := vm.pop()

			if err := vm.checkBounds(index); err != nil {
				return 0, err
			}

			vm.tape[index] = value
		case OpAdd:
			b := vm.pop()
			a := vm.pop()

			if err := vm.push(a + b); err != nil {
				return 0, err
			}
		case OpSub:
			b := vm.pop()
			a := vm.pop()

			if err := vm.push(a - b); err != nil {
				return 0, err
			}
		case OpRead:
			value, err := vm.context.Read()
			if err != nil {
				return 0, vm.fault(FaultIO, "read: %s", err)
			}

			if err := vm.push(value); err != nil {
				return 0, err
			}
		case OpWrite:
			if err := vm.context.Write(vm.pop()); err != nil {
				return 0, vm.fault(FaultIO, "write: %s", err)
			}
		case OpJumpZero:
			pos := int(vm.readU32(true))

			if vm.pop() == 0 {
				vm.currentFrame().ip = pos - 1
			}
		case OpLoop:
			pos := int(vm.readU32(false))
			vm.currentFrame().ip -= pos + 1
		case OpProcedure:
			id := int32(vm.readU16(true))

			if err := vm.push(id); err != nil {
				return 0, err
			}
		case OpRegister:
			proc := Procedure(vm.pop())
			key := vm.pop()

			if err := vm.register(key, proc); err != nil {
				return 0, err
			}
		case OpLookup:
			key := vm.pop()

			if vm.table == nil {
				return 0, vm.fault(FaultNoTable, "call with no dispatch table")
			}

			vm.lastKey = key
			if err := vm.push(int32(vm.table.Lookup(key))); err != nil {
				return 0, err
			}
		case OpInvoke:
			if err := vm.invoke(Procedure(vm.pop())); err != nil {
				return 0, err
			}
		case OpReturn:
			if vm.framesIndex == 1 {
				return 0, nil
			}
			vm.popFrame()
		case OpReturnValue:
			return vm.pop(), nil
		default:
			return 0, vm.fault(FaultInvalidProgram, "unknown opcode: %d", op)
		}
	}

	return 0, nil
}

func (vm *VM) readU32(increment bool) uint32 {
	ip := vm.currentFrame().ip
	ins := vm.currentFrame().instructions
	value := binary.BigEndian.Uint32(ins[ip+1:])

	if increment {
		vm.currentFrame().ip += 4
	}

	return value
}

func (vm *VM) readU16(increment bool) uint16 {
	ip := vm.currentFrame().ip
	ins := vm.currentFrame().instructions
	value := binary.BigEndian.Uint16(ins[ip+1:])

	if increment {
		vm.currentFrame().ip += 2
	}

	return value
}

func (vm *VM) checkBounds(index int32) error {
	if index < 0 || int(index) >= len(vm.tape) {
		return vm.fault(FaultTapeBounds, "pointer %d outside tape [0, %d)", index, len(vm.tape))
	}
	return nil
}

func (vm *VM) register(key int32, proc Procedure) error {
	if vm.table == nil {
		return vm.fault(FaultNoTable, "procedure definition with no dispatch table")
	}

	if err := vm.table.Register(key, proc); err != nil {
		return vm.fault(FaultKeyCollision, "cannot register %s: %s", proc, err)
	}

	return nil
}

func (vm *VM) invoke(proc Procedure) error {
	if proc == NoProcedure || int(proc) >= len(vm.procedures) || proc < 0 {
		return vm.fault(FaultUnregisteredCall,
			"no procedure registered for key %d (registered: %v)", vm.lastKey, vm.table.Keys())
	}

	return vm.pushFrame(newFrame(proc, vm.procedures[proc]))
}

func (vm *VM) fault(kind FaultKind, format string, args ...any) *RuntimeError {
	trace := make([]stackEntry, 0, vm.framesIndex)
	for i := vm.framesIndex - 1; i >= 0; i-- {
		frame := vm.frames[i]
		trace = append(trace, stackEntry{proc: frame.proc, ip: frame.ip})
	}

	return &RuntimeError{
		Reason:     fmt.Sprintf(format, args...),
		Kind:       kind,
		stackTrace: trace,
	}
}

// Tape exposes the tape and pointer after a run, for inspection.
func (vm *VM) Tape() ([]int32, int32) {
	return vm.tape, vm.pointer
}
