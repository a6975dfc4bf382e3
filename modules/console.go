package modules

import (
	"bytes"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"github.com/ajkachnic/pbrain/core"
)

// Initialize installs the console primitives behind ',' and '.' on ctx.
// Interactive input goes through readline so the user can edit a line
// before the program consumes it.
func Initialize(ctx *core.Context, stdin io.Reader, stdout io.Writer) error {
	out := &tailWriter{w: stdout}

	var in io.Reader = stdin
	if f, ok := stdin.(*os.File); ok && isTerminal(f) {
		rl, err := readline.NewEx(&readline.Config{
			Stdin:           f,
			Stdout:          stdout,
			HistoryLimit:    -1,
			InterruptPrompt: "^C",
		})
		if err != nil {
			return err
		}

		in = &lineReader{rl: rl, tail: out}
	}

	ctx.LoadStreams(in, out)
	return nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// tailWriter remembers the unterminated end of what has been written so far.
type tailWriter struct {
	w    io.Writer
	tail []byte
}

func (t *tailWriter) Write(p []byte) (int, error) {
	if i := bytes.LastIndexByte(p, '\n'); i >= 0 {
		t.tail = append(t.tail[:0], p[i+1:]...)
	} else {
		t.tail = append(t.tail, p...)
	}

	return t.w.Write(p)
}

// lineReader feeds the program one edited line at a time. The partial line
// already on screen becomes the prompt so readline redraws it intact.
type lineReader struct {
	rl   *readline.Instance
	tail *tailWriter
	buf  []byte
	eof  bool
}

func (r *lineReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.eof {
			return 0, io.EOF
		}

		r.rl.SetPrompt(string(r.tail.tail))
		line, err := r.rl.Readline()
		r.tail.tail = r.tail.tail[:0]

		if err == io.EOF || err == readline.ErrInterrupt {
			r.eof = true
			r.rl.Close()
			continue
		} else if err != nil {
			return 0, err
		}

		r.buf = append([]byte(line), '\n')
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]

	return n, nil
}
