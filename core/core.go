// Package core compiles pbrain, the eight-operator tape language extended
// with procedures, into bytecode and runs that bytecode.
//
// Pipeline: source bytes -> Source queue -> Program tree -> Bytecode -> VM
package core

func Parse(source []byte) (*Program, error) {
	parser := NewParser()
	return parser.parse(NewSource(source))
}

func Compile(program *Program) (*Bytecode, error) {
	compiler := NewCompiler()
	if err := compiler.compileProgram(program); err != nil {
		return nil, err
	}

	return compiler.Bytecode(), nil
}

// Build parses and compiles source in one step.
func Build(source []byte) (*Bytecode, error) {
	program, err := Parse(source)
	if err != nil {
		return nil, err
	}

	return Compile(program)
}

func Interpret(ctx *Context, source []byte) (int32, error) {
	code, err := Build(source)
	if err != nil {
		return 0, err
	}

	return Execute(ctx, code)
}

func Execute(ctx *Context, code *Bytecode) (int32, error) {
	vm := NewVM(code, ctx)
	return vm.Run()
}
