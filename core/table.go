package core

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Procedure is a handle to a compiled procedure unit.
type Procedure int

// NoProcedure is what a lookup miss hands back. Invoking it is a fault.
const NoProcedure Procedure = -1

func (p Procedure) String() string {
	if p == NoProcedure {
		return "<none>"
	}
	return fmt.Sprintf("pb_%d", int(p))
}

var ErrKeyCollision = errors.New("key already registered")

// Table maps run-time cell values to procedures.
//
// Register never overwrites: a second registration under the same key fails.
// Lookup never fails: a miss yields NoProcedure and the fault, if any, comes
// when the caller invokes it.
type Table interface {
	Register(key int32, proc Procedure) error
	Lookup(key int32) Procedure
	Keys() []int32
}

type HashTable struct {
	entries map[int32]Procedure
}

func NewHashTable() *HashTable {
	return &HashTable{entries: make(map[int32]Procedure)}
}

func (t *HashTable) Register(key int32, proc Procedure) error {
	if existing, ok := t.entries[key]; ok {
		return fmt.Errorf("%w: %d is bound to %s", ErrKeyCollision, key, existing)
	}

	t.entries[key] = proc
	return nil
}

func (t *HashTable) Lookup(key int32) Procedure {
	proc, ok := t.entries[key]
	if !ok {
		return NoProcedure
	}
	return proc
}

// Keys returns the registered keys in ascending order.
func (t *HashTable) Keys() []int32 {
	keys := maps.Keys(t.entries)
	slices.Sort(keys)
	return keys
}
