package core

import (
	"fmt"
)

// TapeSize is the number of cells the generated program allocates.
const TapeSize = 30000

type CompilationScope struct {
	instructions Instructions
}

type Compiler struct {
	scopes     []CompilationScope
	scopeIndex int

	procedures []Instructions
}

func NewCompiler() Compiler {
	scope := CompilationScope{instructions: Instructions{}}

	return Compiler{
		scopes:     []CompilationScope{scope},
		scopeIndex: 0,
		procedures: []Instructions{},
	}
}

func (c *Compiler) Bytecode() *Bytecode {
	return &Bytecode{
		Main:       c.scopes[0].instructions,
		Procedures: c.procedures,
	}
}

func (c *Compiler) enterScope() {
	scope := CompilationScope{instructions: Instructions{}}
	c.scopes = append(c.scopes, scope)
	c.scopeIndex++
}

func (c *Compiler) leaveScope() Instructions {
	instructions := c.currentInstructions()

	c.scopes = c.scopes[:len(c.scopes)-1]
	c.scopeIndex--

	return instructions
}

func (c *Compiler) currentInstructions() Instructions {
	return c.scopes[c.scopeIndex].instructions
}

func (c *Compiler) compileProgram(program *Program) error {
	c.emit(OpNewTape, TapeSize)
	c.emit(OpConstant, 0)
	c.emit(OpStorePointer)

	if program.Dispatch() {
		c.emit(OpNewTable)
	}

	if err := c.compile(program.Main); err != nil {
		return err
	}

	// the program's result is the cell under the final pointer
	c.emit(OpLoadPointer)
	c.emit(OpLoadCell)
	c.emit(OpReturnValue)

	for _, proc := range program.Procs {
		if err := c.compileProcedure(proc); err != nil {
			return err
		}
	}

	return nil
}

func (c *Compiler) compileProcedure(proc ProcDef) error {
	if proc.ID != len(c.procedures) {
		return fmt.Errorf("procedure %d compiled out of order", proc.ID)
	}

	c.enterScope()

	if err := c.compile(proc.Body); err != nil {
		return err
	}
	c.emit(OpReturn)

	c.procedures = append(c.procedures, c.leaveScope())

	return nil
}

func (c *Compiler) compile(node Node) error {
	switch node := node.(type) {
	case Sequence:
		for _, child := range node {
			if err := c.compile(child); err != nil {
				return err
			}
		}
	case Move:
		c.emit(OpLoadPointer)
		c.emitDelta(node.Delta)
		c.emit(OpStorePointer)
	case Amend:
		c.emit(OpLoadPointer) // index for the store
		c.emit(OpLoadPointer)
		c.emit(OpLoadCell)
		c.emitDelta(node.Delta)
		c.emit(OpStoreScratch)
		c.emit(OpLoadScratch)
		c.emit(OpStoreCell)
	case Read:
		c.emit(OpLoadPointer)
		c.emit(OpRead)
		c.emit(OpStoreCell)
	case Write:
		c.emit(OpLoadPointer)
		c.emit(OpLoadCell)
		c.emit(OpWrite)
	case ZeroSet:
		c.emit(OpLoadPointer)
		c.emit(OpConstant, 0)
		c.emit(OpStoreCell)
	case Loop:
		loopStart := len(c.currentInstructions())

		c.emit(OpLoadPointer)
		c.emit(OpLoadCell)
		exitJump := c.emit(OpJumpZero, 0xffffffff)

		if err := c.compile(node.Body); err != nil {
			return err
		}

		c.emitLoop(loopStart)
		c.patchJump(exitJump, len(c.currentInstructions()))
	case ProcRegister:
		if node.ID > 0xffff {
			return fmt.Errorf("too many procedures: %d", node.ID+1)
		}

		c.emit(OpLoadPointer)
		c.emit(OpLoadCell)
		c.emit(OpProcedure, node.ID)
		c.emit(OpRegister)
	case Call:
		c.emit(OpLoadPointer)
		c.emit(OpLoadCell)
		c.emit(OpLookup)
		c.emit(OpInvoke)
	default:
		return fmt.Errorf("unknown node: %s", node.String())
	}

	return nil
}

// emitDelta adds delta to the value on top of the stack with one constant
// load, whatever the magnitude.
func (c *Compiler) emitDelta(delta int) {
	if delta < 0 {
		c.emit(OpConstant, -delta)
		c.emit(OpSub)
	} else {
		c.emit(OpConstant, delta)
		c.emit(OpAdd)
	}
}

func (c *Compiler) emit(op Opcode, operands ...int) int {
	ins := makeOpcode(op, operands...)
	return c.addInstruction(ins)
}

func (c *Compiler) emitLoop(loopStart int) {
	offset := len(c.currentInstructions()) - loopStart

	c.emit(OpLoop, offset)
}

func (c *Compiler) patchJump(position int, operand int) {
	op := Opcode(c.currentInstructions()[position])
	newInstruction := makeOpcode(op, operand)

	for i := 0; i < len(newInstruction); i++ {
		c.scopes[c.scopeIndex].instructions[position+i] = newInstruction[i]
	}
}

func (c *Compiler) addInstruction(ins []byte) int {
	posNewInstruction := len(c.currentInstructions())
	updatedInstructions := append(c.currentInstructions(), ins...)

	c.scopes[c.scopeIndex].instructions = updatedInstructions

	return posNewInstruction
}
