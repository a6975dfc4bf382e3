package core

import (
	"fmt"
	"strings"
)

// Node is an element of the program tree.
type Node interface {
	String() string
	node()
}

type Sequence []Node

func (n Sequence) String() string {
	parts := make([]string, len(n))
	for i, child := range n {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Move displaces the pointer by Delta cells.
type Move struct {
	Delta int
}

func (n Move) String() string {
	return fmt.Sprintf("move(%d)", n.Delta)
}

// Amend adds Delta to the cell under the pointer.
type Amend struct {
	Delta int
}

func (n Amend) String() string {
	return fmt.Sprintf("amend(%d)", n.Delta)
}

type Read struct{}

func (n Read) String() string {
	return "read"
}

type Write struct{}

func (n Write) String() string {
	return "write"
}

// ZeroSet replaces the loop [-].
type ZeroSet struct{}

func (n ZeroSet) String() string {
	return "zero"
}

type Loop struct {
	Body Sequence
}

func (n Loop) String() string {
	return fmt.Sprintf("loop%s", n.Body)
}

// ProcDef is a procedure unit. ID is its position in source order and has
// nothing to do with the key it is registered under at run time.
type ProcDef struct {
	ID   int
	Body Sequence
}

func (n ProcDef) String() string {
	return fmt.Sprintf("proc#%d%s", n.ID, n.Body)
}

// ProcRegister sits where the definition appeared and registers procedure ID
// under the value of the current cell.
type ProcRegister struct {
	ID int
}

func (n ProcRegister) String() string {
	return fmt.Sprintf("register(#%d)", n.ID)
}

// Call invokes the procedure registered under the value of the current cell.
type Call struct{}

func (n Call) String() string {
	return "call"
}

func (Sequence) node()     {}
func (Move) node()         {}
func (Amend) node()        {}
func (Read) node()         {}
func (Write) node()        {}
func (ZeroSet) node()      {}
func (Loop) node()         {}
func (ProcDef) node()      {}
func (ProcRegister) node() {}
func (Call) node()         {}

// Program is the parsed tree: the top level sequence plus every procedure
// definition, indexed by ID.
type Program struct {
	Main  Sequence
	Procs []ProcDef

	// number of ':' in the source
	Calls int
}

// Dispatch reports whether the generated program needs a dispatch table.
func (p *Program) Dispatch() bool {
	return p.Calls > 0 || len(p.Procs) > 0
}

func (p *Program) String() string {
	var out strings.Builder

	out.WriteString(p.Main.String())
	for _, proc := range p.Procs {
		out.WriteString("\n")
		out.WriteString(proc.String())
	}

	return out.String()
}

// ParseError reports a bracket without a partner. Bracket is the character
// that failed to match, so '[' and '(' mean an unclosed scope and ']' and ')'
// a stray closer.
type ParseError struct {
	Bracket byte
	Pos     position
}

func (e ParseError) Error() string {
	return fmt.Sprintf("Unmatched %c found at offset %d", e.Bracket, e.Pos.Offset)
}

func (e ParseError) Unclosed() bool {
	return e.Bracket == '[' || e.Bracket == '('
}

type parser struct {
	procs []ProcDef
}

func NewParser() parser {
	return parser{procs: []ProcDef{}}
}

func (p *parser) parse(s *Source) (*Program, error) {
	main, err := p.parseSequence(s)
	if err != nil {
		return nil, err
	}

	return &Program{Main: main, Procs: p.procs, Calls: s.calls}, nil
}

// parseSequence drains s. Loop and procedure bodies are captured into their
// own queues and parsed by re-entering here.
func (p *parser) parseSequence(s *Source) (Sequence, error) {
	seq := Sequence{}

	for !s.isEOF() {
		ch := s.next()

		switch ch {
		case '+':
			seq = append(seq, Amend{Delta: s.group(ch)})
		case '-':
			seq = append(seq, Amend{Delta: -s.group(ch)})
		case '>':
			seq = append(seq, Move{Delta: s.group(ch)})
		case '<':
			seq = append(seq, Move{Delta: -s.group(ch)})
		case ',':
			seq = append(seq, Read{})
		case '.':
			seq = append(seq, Write{})
		case ':':
			seq = append(seq, Call{})
		case '[':
			node, err := p.parseLoop(s)
			if err != nil {
				return nil, err
			}
			seq = append(seq, node)
		case '(':
			node, err := p.parseProcedure(s)
			if err != nil {
				return nil, err
			}
			seq = append(seq, node)
		case ']', ')':
			return nil, ParseError{Bracket: ch, Pos: s.pos()}
		default:
		}
	}

	return seq, nil
}

func (p *parser) parseLoop(s *Source) (Node, error) {
	open := s.pos()
	body := &Source{}
	depth := 0
	first := true

	for !s.isEOF() {
		ch := s.next()
		offset := s.pos().Offset

		if first && ch == '-' && !s.isEOF() && s.peek() == ']' {
			s.next()
			return ZeroSet{}, nil
		}
		first = false

		if ch == '[' {
			depth++
		} else if ch == ']' {
			if depth == 0 {
				seq, err := p.parseSequence(body)
				if err != nil {
					return nil, err
				}
				return Loop{Body: seq}, nil
			}
			depth--
		}

		body.enqueue(ch, offset)
	}

	return nil, ParseError{Bracket: '[', Pos: open}
}

func (p *parser) parseProcedure(s *Source) (Node, error) {
	open := s.pos()
	body := &Source{}
	depth := 0

	for !s.isEOF() {
		ch := s.next()
		offset := s.pos().Offset

		if ch == '(' {
			depth++
		} else if ch == ')' {
			if depth == 0 {
				return p.defineProcedure(body)
			}
			depth--
		}

		body.enqueue(ch, offset)
	}

	return nil, ParseError{Bracket: '(', Pos: open}
}

func (p *parser) defineProcedure(body *Source) (Node, error) {
	// the id is taken before the body is parsed so that definitions nested
	// inside it are numbered after it
	id := len(p.procs)
	p.procs = append(p.procs, ProcDef{ID: id})

	seq, err := p.parseSequence(body)
	if err != nil {
		return nil, err
	}
	p.procs[id].Body = seq

	return ProcRegister{ID: id}, nil
}
