package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func runSource(t *testing.T, source string, input string) (string, int32, error) {
	t.Helper()

	var out bytes.Buffer
	ctx := NewContext("test")
	ctx.LoadStreams(strings.NewReader(input), &out)

	result, err := Interpret(&ctx, []byte(source))
	return out.String(), result, err
}

func runProgram(t *testing.T, program *Program) (*VM, int32) {
	t.Helper()

	code, err := Compile(program)
	if err != nil {
		t.Fatalf("unexpected compile error: %s", err)
	}

	ctx := NewContext("test")
	vm := NewVM(code, &ctx)
	result, err := vm.Run()
	if err != nil {
		t.Fatalf("unexpected runtime error: %s", err)
	}

	return vm, result
}

func expectFault(t *testing.T, err error, kind FaultKind) *RuntimeError {
	t.Helper()

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected a runtime error, got %v", err)
	}
	if runtimeErr.Kind != kind {
		t.Fatalf("expected a %s fault, got %s: %s", kind, runtimeErr.Kind, runtimeErr)
	}
	return runtimeErr
}

func TestHelloFragment(t *testing.T) {
	out, result, err := runSource(t, "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.", "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if out != "Hello" {
		t.Fatalf("expected Hello, got %q", out)
	}
	if result != 'o' {
		t.Fatalf("expected the final cell to hold %d, got %d", 'o', result)
	}
}

func TestPointerAndCells(t *testing.T) {
	code, err := Build([]byte(">>>+"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	ctx := NewContext("test")
	vm := NewVM(code, &ctx)
	result, err := vm.Run()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	tape, pointer := vm.Tape()
	if pointer != 3 || result != 1 {
		t.Fatalf("expected pointer 3 holding 1, got pointer %d holding %d", pointer, result)
	}
	if len(tape) != TapeSize {
		t.Fatalf("expected a tape of %d cells, got %d", TapeSize, len(tape))
	}
	for i, cell := range tape {
		if i != 3 && cell != 0 {
			t.Fatalf("expected cell %d to be 0, got %d", i, cell)
		}
	}
}

func TestRunLengthEquivalence(t *testing.T) {
	for _, n := range []int{1, 2, 7, 255, 1000} {
		grouped := Sequence{Amend{Delta: n}, Move{Delta: n}, Amend{Delta: -n}}

		separate := Sequence{}
		for i := 0; i < n; i++ {
			separate = append(separate, Amend{Delta: 1})
		}
		for i := 0; i < n; i++ {
			separate = append(separate, Move{Delta: 1})
		}
		for i := 0; i < n; i++ {
			separate = append(separate, Amend{Delta: -1})
		}

		vmA, resultA := runProgram(t, &Program{Main: grouped})
		vmB, resultB := runProgram(t, &Program{Main: separate})

		tapeA, pointerA := vmA.Tape()
		tapeB, pointerB := vmB.Tape()

		if resultA != resultB || pointerA != pointerB || tapeA[0] != tapeB[0] || tapeA[n] != tapeB[n] {
			t.Errorf("n=%d: grouped and separate runs differ", n)
		}
	}
}

func TestZeroSetMatchesDecrementLoop(t *testing.T) {
	for start := 0; start <= 40; start++ {
		prefix := Sequence{}
		if start > 0 {
			prefix = append(prefix, Amend{Delta: start})
		}

		zero := append(append(Sequence{}, prefix...), ZeroSet{}, Move{Delta: 1}, Amend{Delta: 1}, Move{Delta: -1})
		loop := append(append(Sequence{}, prefix...), Loop{Body: Sequence{Amend{Delta: -1}}}, Move{Delta: 1}, Amend{Delta: 1}, Move{Delta: -1})

		vmA, resultA := runProgram(t, &Program{Main: zero})
		vmB, resultB := runProgram(t, &Program{Main: loop})

		tapeA, _ := vmA.Tape()
		tapeB, _ := vmB.Tape()

		if resultA != 0 || resultB != 0 || tapeA[1] != tapeB[1] {
			t.Errorf("start=%d: zero set and loop differ (%d, %d)", start, resultA, resultB)
		}
	}
}

func TestReadWrite(t *testing.T) {
	out, result, err := runSource(t, ",.>,.>,", "Hi")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if out != "Hi" {
		t.Fatalf("expected Hi, got %q", out)
	}
	if result != -1 {
		t.Fatalf("expected -1 at end of input, got %d", result)
	}
}

func TestReadRune(t *testing.T) {
	out, result, err := runSource(t, ",.", "é")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if out != "é" || result != 'é' {
		t.Fatalf("expected é (%d), got %q (%d)", 'é', out, result)
	}
}

func TestCellArithmeticWraps(t *testing.T) {
	_, result, err := runSource(t, "-", "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if result != -1 {
		t.Fatalf("expected -1, got %d", result)
	}
}

func TestProcedureCall(t *testing.T) {
	out, result, err := runSource(t, "+++++(+++++.):", "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if out != "\n" || result != 10 {
		t.Fatalf("expected a newline and 10, got %q and %d", out, result)
	}
}

func TestProceduresShareTapeAndPointer(t *testing.T) {
	_, result, err := runSource(t, "(>+++):", "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if result != 3 {
		t.Fatalf("expected the pointer move inside the procedure to stick, got %d", result)
	}
}

func TestProcedureDefinedInsideProcedure(t *testing.T) {
	// the first call bumps the cell to 1 and registers procedure 1 under it
	out, result, err := runSource(t, "(+("+strings.Repeat("+", 34)+".))::", "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if out != "#" || result != '#' {
		t.Fatalf("expected #, got %q (%d)", out, result)
	}
}

func TestCallMissFaults(t *testing.T) {
	out, _, err := runSource(t, "+++++(+++++.)+:", "")

	fault := expectFault(t, err, FaultUnregisteredCall)
	if !strings.Contains(fault.Reason, "key 6") || !strings.Contains(fault.Reason, "[5]") {
		t.Errorf("unexpected reason %q", fault.Reason)
	}
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
}

func TestDuplicateRegistrationFaults(t *testing.T) {
	out, _, err := runSource(t, "+(.)(-.)  +:", "")

	fault := expectFault(t, err, FaultKeyCollision)
	if !strings.Contains(fault.Reason, "pb_1") || !strings.Contains(fault.Reason, "pb_0") {
		t.Errorf("unexpected reason %q", fault.Reason)
	}
	if out != "" {
		t.Errorf("expected the first registration to stay untouched, got output %q", out)
	}
}

func TestRecursionOverflowsFrames(t *testing.T) {
	_, _, err := runSource(t, "(:):", "")

	fault := expectFault(t, err, FaultStackOverflow)
	if !strings.Contains(fault.Error(), "in pb_0") || !strings.Contains(fault.Error(), "in main") {
		t.Errorf("expected a procedure trace, got %s", fault)
	}
}

func TestTapeBounds(t *testing.T) {
	tests := []string{
		"<+",
		"<",
		strings.Repeat(">", TapeSize) + "+",
	}

	for _, input := range tests {
		_, _, err := runSource(t, input, "")
		expectFault(t, err, FaultTapeBounds)
	}
}

func TestNoTableWithoutProcedures(t *testing.T) {
	code, err := Build([]byte("+++."))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var out bytes.Buffer
	ctx := NewContext("test")
	ctx.LoadStreams(strings.NewReader(""), &out)

	vm := NewVM(code, &ctx)
	if _, err := vm.Run(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if vm.table != nil {
		t.Fatalf("expected no dispatch table to be allocated")
	}
}
