// Package readyqueue implements the priority-indexed ready array: one
// FIFO list per priority level plus the occupancy bitmap needed to
// find the highest-priority non-empty level in O(1).
package readyqueue

import (
	"github.com/nradulovic/nkernel/internal/bitmap"
	"github.com/nradulovic/nkernel/internal/list"
)

// Prioritized is implemented by a pointer to anything that can sit in
// a ready queue: its Priority method reports which of the queue's
// levels it belongs to.
type Prioritized interface {
	Priority() int
}

// Array is a priority-indexed array of circular FIFO lists, one per
// level, selected in O(1) via an occupancy bitmap. *T must implement
// Prioritized; Insert panics otherwise.
type Array[T any] struct {
	levels []list.List[T]
	occ    *bitmap.Bitmap
}

// New constructs an Array covering levels priority levels (0..levels-1).
func New[T any](levels int) *Array[T] {
	return &Array[T]{
		levels: make([]list.List[T], levels),
		occ:    bitmap.New(levels),
	}
}

// WithScanner installs a hardware-accelerated highest-bit scanner on
// the underlying occupancy bitmap.
func (a *Array[T]) WithScanner(s bitmap.Scanner) {
	a.occ.WithScanner(s)
}

// Insert links node into the list for its value's current priority
// and marks that level occupied.
func (a *Array[T]) Insert(node *list.Node[T]) {
	prio := any(node.Value()).(Prioritized).Priority()
	a.checkLevel(prio)
	a.levels[prio].PushBack(node)
	a.occ.Set(prio)
}

// Remove unlinks node from the level it is currently queued on,
// clearing that level's occupancy bit if it becomes empty.
func (a *Array[T]) Remove(node *list.Node[T], priority int) {
	a.checkLevel(priority)
	a.levels[priority].Remove(node)
	if a.levels[priority].Empty() {
		a.occ.Clear(priority)
	}
}

// Empty reports whether no level holds a queued element.
func (a *Array[T]) Empty() bool {
	return a.occ.Empty()
}

// HighestPriority returns the priority of the highest occupied level.
// The Array must not be Empty.
func (a *Array[T]) HighestPriority() int {
	return a.occ.Highest()
}

// FetchFirst returns the front element of the highest occupied level
// without removing it. The Array must not be Empty.
func (a *Array[T]) FetchFirst() *T {
	prio := a.HighestPriority()
	return a.levels[prio].Front().Value()
}

// LevelSize reports how many elements are queued at the given priority.
func (a *Array[T]) LevelSize(priority int) int {
	a.checkLevel(priority)
	return a.levels[priority].Len()
}

// Rotate moves the front element of priority's level to the tail,
// implementing one step of round-robin quantum rotation, and returns
// the new front element of that level.
func (a *Array[T]) Rotate(priority int) *T {
	a.checkLevel(priority)
	return a.levels[priority].RotateFront().Value()
}

func (a *Array[T]) checkLevel(priority int) {
	if priority < 0 || priority >= len(a.levels) {
		panic("readyqueue: priority out of range")
	}
}
