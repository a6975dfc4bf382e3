package core

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fatih/color"
)

type Instructions []byte
type Opcode byte

func (ins Instructions) String() string {
	var out bytes.Buffer

	i := 0
	for i < len(ins) {
		def, err := lookupOpcode(ins[i])
		if err != nil {
			fmt.Fprintf(&out, "ERROR: %s\n", err)
			i++
			continue
		}

		operands, read := readOperands(def, ins[i+1:])

		fmt.Fprintf(&out, "%s %s\n", color.YellowString("%04d", i), ins.fmtInstruction(def, operands))

		i += 1 + read
	}

	return out.String()
}

func (ins Instructions) fmtInstruction(def *Definition, operands []int) string {
	operandCount := len(def.operandWidths)

	if len(operands) != operandCount {
		return fmt.Sprintf("ERROR: operand len %d does not match defined %d\n",
			len(operands), operandCount)
	}

	switch operandCount {
	case 0:
		return def.name
	case 1:
		return fmt.Sprintf("%s %d", def.name, operands[0])
	}

	return fmt.Sprintf("ERROR: unhandled operandCount for %s\n", def.name)
}

type Definition struct {
	name          string
	operandWidths []int
}

const (
	// storage
	OpNewTape Opcode = iota
	OpNewTable
	OpLoadPointer
	OpStorePointer
	OpLoadCell  // pops index
	OpStoreCell // pops value, then index
	OpLoadScratch
	OpStoreScratch

	OpConstant
	OpAdd
	OpSub

	// host primitives
	OpRead
	OpWrite

	OpJumpZero
	OpLoop // negative jump

	// procedures
	OpProcedure
	OpRegister
	OpLookup
	OpInvoke
	OpReturn
	OpReturnValue
)

var definitions = map[Opcode]*Definition{
	OpNewTape:      {"OpNewTape", []int{4}},
	OpNewTable:     {"OpNewTable", []int{}},
	OpLoadPointer:  {"OpLoadPointer", []int{}},
	OpStorePointer: {"OpStorePointer", []int{}},
	OpLoadCell:     {"OpLoadCell", []int{}},
	OpStoreCell:    {"OpStoreCell", []int{}},
	OpLoadScratch:  {"OpLoadScratch", []int{}},
	OpStoreScratch: {"OpStoreScratch", []int{}},

	OpConstant: {"OpConstant", []int{4}},
	OpAdd:      {"OpAdd", []int{}},
	OpSub:      {"OpSub", []int{}},

	OpRead:  {"OpRead", []int{}},
	OpWrite: {"OpWrite", []int{}},

	OpJumpZero: {"OpJumpZero", []int{4}},
	OpLoop:     {"OpLoop", []int{4}},

	OpProcedure:   {"OpProcedure", []int{2}},
	OpRegister:    {"OpRegister", []int{}},
	OpLookup:      {"OpLookup", []int{}},
	OpInvoke:      {"OpInvoke", []int{}},
	OpReturn:      {"OpReturn", []int{}},
	OpReturnValue: {"OpReturnValue", []int{}},
}

func lookupOpcode(op byte) (*Definition, error) {
	def, ok := definitions[Opcode(op)]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}

	return def, nil
}

func readOperands(def *Definition, instructions Instructions) ([]int, int) {
	operands := make([]int, len(def.operandWidths))
	offset := 0

	for i, width := range def.operandWidths {
		switch width {
		case 1:
			operands[i] = int(instructions[offset])
		case 2:
			operands[i] = int(binary.BigEndian.Uint16(instructions[offset:]))
		case 4:
			operands[i] = int(binary.BigEndian.Uint32(instructions[offset:]))
		}

		offset += width
	}

	return operands, offset
}

func makeOpcode(op Opcode, operands ...int) []byte {
	def, ok := definitions[op]
	if !ok {
		return []byte{}
	}

	instructionLen := 1
	for _, w := range def.operandWidths {
		instructionLen += w
	}

	instruction := make([]byte, instructionLen)
	instruction[0] = byte(op)

	offset := 1
	for i, o := range operands {
		width := def.operandWidths[i]
		switch width {
		case 1:
			instruction[offset] = byte(o)
		case 2:
			binary.BigEndian.PutUint16(instruction[offset:], uint16(o))
		case 4:
			binary.BigEndian.PutUint32(instruction[offset:], uint32(o))
		}
		offset += width
	}

	return instruction
}

// Bytecode is the finished instruction stream: the entry unit plus one unit
// per procedure, indexed by procedure ID.
type Bytecode struct {
	Main       Instructions
	Procedures []Instructions
}

func (b *Bytecode) String() string {
	var out bytes.Buffer

	fmt.Fprintf(&out, "%s\n%s", color.CyanString("main:"), b.Main)
	for i, proc := range b.Procedures {
		fmt.Fprintf(&out, "%s\n%s", color.CyanString("pb_%d:", i), proc)
	}

	return out.String()
}
