package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/quick"
	"github.com/fatih/color"
	"github.com/reeflective/readline"

	"github.com/ajkachnic/pbrain/artifact"
	"github.com/ajkachnic/pbrain/core"
	"github.com/ajkachnic/pbrain/modules"
)

const version = "0.1.0"

const helpMessage = `pbrain compiles pbrain programs into standalone executables.

Usage:
  pbrain [flags] <file>
  pbrain             start a REPL
`

var debugAst = flag.Bool("debug-ast", false, "print the program tree")
var debugBytecode = flag.Bool("debug-bytecode", false, "print bytecode")
var debugTokens = flag.Bool("debug-tokens", false, "print run-length grouped tokens")
var debugSource = flag.Bool("debug-source", false, "print the highlighted source")
var outPath = flag.String("o", "", "output path (default: input base name in the working directory)")
var emitModule = flag.Bool("emit-module", false, "write a bare "+artifact.ModuleExt+" module instead of an executable")
var runNow = flag.Bool("run", false, "run a source or module file instead of compiling it")
var verbose = flag.Bool("v", false, "report each compilation stage")
var showVersion = flag.Bool("version", false, "print the version")

var (
	faint   = color.New(color.Faint)
	red     = color.New(color.FgRed)
	green   = color.New(color.FgGreen)
	cyan    = color.New(color.FgCyan)
	blue    = color.New(color.FgBlue)
	yellow  = color.New(color.FgYellow)
	magenta = color.New(color.FgMagenta)
)

func main() {
	if code, ok := bundledProgram(); ok {
		execute(filepath.Base(os.Args[0]), code)
		return
	}

	flag.Usage = func() {
		fmt.Print(helpMessage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Println("pbrain", version)
		return
	}

	args := flag.Args()

	switch {
	case len(args) == 0:
		repl()
	case *runNow:
		runFile(args[0])
	default:
		compileFile(args[0])
	}
}

// bundledProgram reports whether this executable is a compiled program
// rather than the compiler itself.
func bundledProgram() (*core.Bytecode, bool) {
	self, err := os.Executable()
	if err != nil {
		return nil, false
	}

	code, ok, err := artifact.ExtractFile(self)
	if err != nil {
		fail(err)
	}

	return code, ok
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, red.Sprint(err))
	os.Exit(1)
}

func stage(format string, args ...any) {
	if *verbose {
		faint.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func build(path string) *core.Bytecode {
	content, err := os.ReadFile(path)
	if err != nil {
		fail(err)
	}

	if *debugSource {
		if err := quick.Highlight(os.Stdout, string(content), "brainfuck", "terminal", "monokai"); err != nil {
			fail(err)
		}
		fmt.Println()
	}

	if *debugTokens {
		for _, tok := range core.Tokenize(content) {
			if tok.Kind != core.COMMENT {
				fmt.Print(tok, " ")
			}
		}
		fmt.Println()
	}

	program, err := core.Parse(content)
	if err != nil {
		fail(err)
	}
	stage("parsed %s: %d top-level nodes, %d procedures, %d call sites",
		path, len(program.Main), len(program.Procs), program.Calls)

	if *debugAst {
		fmt.Println(program)
	}

	code, err := core.Compile(program)
	if err != nil {
		fail(err)
	}
	stage("emitted %d bytes of main code and %d procedure units", len(code.Main), len(code.Procedures))

	if *debugBytecode {
		fmt.Print(code)
	}

	return code
}

func compileFile(path string) {
	code := build(path)

	output := *outPath
	if *emitModule {
		if output == "" {
			base := filepath.Base(path)
			output = strings.TrimSuffix(base, filepath.Ext(base)) + artifact.ModuleExt
		}

		if err := artifact.WriteModule(output, code); err != nil {
			fail(err)
		}
		fmt.Printf("Module saved as '%s'.\n", output)
		return
	}

	if output == "" {
		output = artifact.OutputName(path)
	}

	runner, err := artifact.Runner()
	if err != nil {
		fail(err)
	}

	executable, err := artifact.Bundle(runner, code)
	if err != nil {
		fail(err)
	}
	stage("bundled %d byte runner", len(runner))

	if err := artifact.WriteExecutable(output, executable); err != nil {
		fail(err)
	}

	fmt.Printf("Executable saved as '%s'.\n", green.Sprint(output))
}

func runFile(path string) {
	var code *core.Bytecode

	if filepath.Ext(path) == artifact.ModuleExt {
		module, err := artifact.ReadModule(path)
		if err != nil {
			fail(err)
		}
		code = module
	} else {
		code = build(path)
	}

	execute(filepath.Base(path), code)
}

func execute(name string, code *core.Bytecode) {
	context := core.NewContext(name)
	if err := modules.Initialize(&context, os.Stdin, os.Stdout); err != nil {
		fail(err)
	}

	result, err := core.Execute(&context, code)
	if err != nil {
		fail(err)
	}

	os.Exit(int(result))
}

func repl() {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return "> " })
	rl.SyntaxHighlighter = highlight

	for {
		text, err := rl.Readline()

		if err == io.EOF {
			break
		} else if err != nil {
			fmt.Println(err)
			break
		}

		program, err := core.Parse([]byte(text))
		if err != nil {
			fmt.Println(red.Sprint(err))
			continue
		}

		if *debugAst {
			fmt.Println(program)
		}

		code, err := core.Compile(program)
		if err != nil {
			fmt.Println(red.Sprint(err))
			continue
		}

		if *debugBytecode {
			fmt.Print(code)
		}

		// each line is a program of its own with no input
		context := core.NewContext("<stdin>")
		context.LoadStreams(strings.NewReader(""), os.Stdout)

		result, err := core.Execute(&context, code)
		if err != nil {
			fmt.Println(red.Sprint(err))
			continue
		}

		fmt.Println()
		fmt.Printf("%s%d\n", faint.Sprint("=> "), result)
	}
}

func highlight(line []rune) string {
	source := string(line)
	tokens := core.Tokenize([]byte(source))

	builder := strings.Builder{}

	for _, token := range tokens {
		text := source[token.Pos.Offset : token.Pos.Offset+int(token.Length)]

		switch token.Kind {
		case core.INCREMENT, core.DECREMENT:
			builder.WriteString(cyan.Sprint(text))
		case core.FORWARD, core.BACK:
			builder.WriteString(blue.Sprint(text))
		case core.READ, core.WRITE:
			builder.WriteString(yellow.Sprint(text))
		case core.LOOP_OPEN, core.LOOP_CLOSE:
			builder.WriteString(magenta.Sprint(text))
		case core.PROC_OPEN, core.PROC_CLOSE, core.CALL:
			builder.WriteString(green.Sprint(text))
		default:
			builder.WriteString(faint.Sprint(text))
		}
	}

	return builder.String()
}
