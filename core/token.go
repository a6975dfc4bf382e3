package core

import (
	"fmt"
)

type tokenKind int

const (
	COMMENT tokenKind = iota

	// amount operators, carry a run-length count
	FORWARD
	BACK
	INCREMENT
	DECREMENT

	READ
	WRITE
	LOOP_OPEN
	LOOP_CLOSE
	PROC_OPEN
	PROC_CLOSE
	CALL
)

type position struct {
	Offset int
}

func (p position) String() string {
	return fmt.Sprintf("[%d]", p.Offset)
}

type token struct {
	Kind   tokenKind
	Pos    position
	Count  int
	Length uint
}

func (t token) String() string {
	switch t.Kind {
	case FORWARD:
		return fmt.Sprintf(">%d", t.Count)
	case BACK:
		return fmt.Sprintf("<%d", t.Count)
	case INCREMENT:
		return fmt.Sprintf("+%d", t.Count)
	case DECREMENT:
		return fmt.Sprintf("-%d", t.Count)
	case READ:
		return ","
	case WRITE:
		return "."
	case LOOP_OPEN:
		return "["
	case LOOP_CLOSE:
		return "]"
	case PROC_OPEN:
		return "("
	case PROC_CLOSE:
		return ")"
	case CALL:
		return ":"
	default:
		return "<comment>"
	}
}

func kindOf(ch byte) tokenKind {
	switch ch {
	case '>':
		return FORWARD
	case '<':
		return BACK
	case '+':
		return INCREMENT
	case '-':
		return DECREMENT
	case ',':
		return READ
	case '.':
		return WRITE
	case '[':
		return LOOP_OPEN
	case ']':
		return LOOP_CLOSE
	case '(':
		return PROC_OPEN
	case ')':
		return PROC_CLOSE
	case ':':
		return CALL
	}

	return COMMENT
}

func isAmount(ch byte) bool {
	switch ch {
	case '>', '<', '+', '-':
		return true
	}
	return false
}

// Source is the character queue the parser drains front to back. Nothing is
// filtered when it is built; offsets are kept so errors can point back into
// the source file.
type Source struct {
	chars   []byte
	offsets []int
	index   int

	// number of ':' bytes seen while enqueueing
	calls int
}

func NewSource(src []byte) *Source {
	s := &Source{
		chars:   make([]byte, 0, len(src)),
		offsets: make([]int, 0, len(src)),
	}

	for i, ch := range src {
		s.enqueue(ch, i)

		if ch == ':' {
			s.calls++
		}
	}

	return s
}

func (s *Source) enqueue(ch byte, offset int) {
	s.chars = append(s.chars, ch)
	s.offsets = append(s.offsets, offset)
}

func (s *Source) isEOF() bool {
	return s.index >= len(s.chars)
}

func (s *Source) Len() int {
	return len(s.chars) - s.index
}

func (s *Source) next() byte {
	ch := s.chars[s.index]
	s.index++
	return ch
}

func (s *Source) peek() byte {
	return s.chars[s.index]
}

// pos is the offset of the character most recently dequeued.
func (s *Source) pos() position {
	if s.index == 0 {
		return position{}
	}
	return position{Offset: s.offsets[s.index-1]}
}

// group merges every immediately following occurrence of op into one count.
// The first op has already been dequeued by the caller.
func (s *Source) group(op byte) int {
	count := 1
	for !s.isEOF() && s.peek() == op {
		s.next()
		count++
	}

	return count
}

// Tokenize returns the run-length aware token stream for src. Runs of
// ignored bytes come back as a single COMMENT token.
func Tokenize(src []byte) []token {
	s := NewSource(src)
	tokens := []token{}

	for !s.isEOF() {
		ch := s.next()
		start := s.pos()
		kind := kindOf(ch)

		tok := token{Kind: kind, Pos: start, Count: 1, Length: 1}

		switch {
		case isAmount(ch):
			tok.Count = s.group(ch)
			tok.Length = uint(tok.Count)
		case kind == COMMENT:
			for !s.isEOF() && kindOf(s.peek()) == COMMENT {
				s.next()
				tok.Length++
			}
		}

		tokens = append(tokens, tok)
	}

	return tokens
}
