package core

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type FaultKind int

const (
	FaultKeyCollision FaultKind = iota
	FaultUnregisteredCall
	FaultTapeBounds
	FaultStackOverflow
	FaultNoTable
	FaultIO
	FaultInvalidProgram
)

func (k FaultKind) String() string {
	switch k {
	case FaultKeyCollision:
		return "key collision"
	case FaultUnregisteredCall:
		return "unregistered call"
	case FaultTapeBounds:
		return "tape bounds"
	case FaultStackOverflow:
		return "stack overflow"
	case FaultNoTable:
		return "no dispatch table"
	case FaultIO:
		return "io"
	default:
		return "invalid program"
	}
}

type stackEntry struct {
	proc Procedure
	ip   int
}

func (e stackEntry) String() string {
	if e.proc == NoProcedure {
		return fmt.Sprintf("  in main at %04d", e.ip)
	}
	return fmt.Sprintf("  in %s at %04d", e.proc, e.ip)
}

// RuntimeError is a fault raised by the generated program.
type RuntimeError struct {
	Reason string
	Kind   FaultKind

	stackTrace []stackEntry
}

func (e *RuntimeError) Error() string {
	trace := make([]string, len(e.stackTrace))
	for i, entry := range e.stackTrace {
		trace[i] = entry.String()
	}
	if len(trace) == 0 {
		return fmt.Sprintf("Runtime error: %s", e.Reason)
	}
	return fmt.Sprintf("Runtime error: %s\n%s", e.Reason, strings.Join(trace, "\n"))
}

// ReadFn returns the next input character, or -1 once input is exhausted.
type ReadFn func() (int32, error)

// WriteFn outputs one character.
type WriteFn func(int32) error

// Context holds what the generated program borrows from its host: the
// console primitives behind ',' and '.'.
type Context struct {
	// name of the program, used in diagnostics
	Name string

	Read  ReadFn
	Write WriteFn
	Flush func() error
}

func NewContext(name string) Context {
	return Context{
		Name:  name,
		Read:  func() (int32, error) { return -1, nil },
		Write: func(int32) error { return nil },
		Flush: func() error { return nil },
	}
}

func (c *Context) LoadPrimitives(read ReadFn, write WriteFn, flush func() error) {
	c.Read = read
	c.Write = write
	c.Flush = flush
}

// LoadStreams reads characters from in and writes them to out. Output is
// buffered and flushed before every read so prompts appear in order.
func (c *Context) LoadStreams(in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	writer := bufio.NewWriter(out)

	c.LoadPrimitives(
		func() (int32, error) {
			if err := writer.Flush(); err != nil {
				return 0, err
			}

			r, _, err := reader.ReadRune()
			if err == io.EOF {
				return -1, nil
			} else if err != nil {
				return 0, err
			}

			return int32(r), nil
		},
		func(v int32) error {
			_, err := writer.WriteRune(rune(v))
			return err
		},
		writer.Flush,
	)
}
