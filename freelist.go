// Copyright 2014 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package btree

import (
	"sync"

	"go.uber.org/atomic"
)

const (
	// DefaultFreeListSize is the size of the free list a tree gets when none is
	// passed to NewWithFreeList.
	DefaultFreeListSize = 32
)

// FreeList represents a free list of btree nodes. By default each
// BTree has its own FreeList, but multiple BTrees can share the same
// FreeList, in particular when they're created with Clone.
// Two Btrees using the same freelist are safe for concurrent write access.
type FreeList[T Item[T]] struct {
	mu       sync.Mutex
	freelist []*node[T]
}

// NewFreeList creates a new free list.
// size is the maximum size of the returned free list.
func NewFreeList[T Item[T]](size int) *FreeList[T] {
	return &FreeList[T]{freelist: make([]*node[T], 0, size)}
}

// Len returns the number of nodes currently held by the free list.
func (f *FreeList[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.freelist)
}

func (f *FreeList[T]) newNode() (n *node[T]) {
	f.mu.Lock()
	index := len(f.freelist) - 1
	if index < 0 {
		f.mu.Unlock()
		return new(node[T])
	}
	n = f.freelist[index]
	f.freelist[index] = nil
	f.freelist = f.freelist[:index]
	f.mu.Unlock()
	return
}

// freeNode adds the given node to the list, returning true if it was added
// and false if it was discarded.
func (f *FreeList[T]) freeNode(n *node[T]) (out bool) {
	f.mu.Lock()
	if len(f.freelist) < cap(f.freelist) {
		f.freelist = append(f.freelist, n)
		out = true
	}
	f.mu.Unlock()
	return
}

// generation identifies a copy-on-write context. Zero is reserved for nodes
// that belong to no context (fresh or sitting in a free list).
type generation uint64

var lastGeneration = atomic.NewUint64(0)

func nextGeneration() generation {
	return generation(lastGeneration.Inc())
}

// copyOnWriteContext determines node ownership... a tree with a write context
// whose generation equals a node's owner is allowed to modify that node.
// A tree whose write context does not match a node's is not allowed to modify
// it, and must create a new, writable copy (IE: it's a Clone).
//
// When doing any write operation, we maintain the invariant that the current
// node's owner is equal to the generation of the tree that requested the write.
// We do this by, before we descend into any node, creating a copy with the
// correct owner if they don't match.
//
// Since the node we're currently visiting on any write is owned by the
// requesting tree, that node is modifiable in place.  Children of that node may
// not be, but before we descend into them, we'll make a mutable copy.
type copyOnWriteContext[T Item[T]] struct {
	gen      generation
	freelist *FreeList[T]
}

func newCopyOnWriteContext[T Item[T]](f *FreeList[T]) *copyOnWriteContext[T] {
	return &copyOnWriteContext[T]{gen: nextGeneration(), freelist: f}
}

// owns reports whether n may be mutated in place under c.
func (c *copyOnWriteContext[T]) owns(n *node[T]) bool {
	return n.owner == c.gen
}

func (c *copyOnWriteContext[T]) newNode() (n *node[T]) {
	n = c.freelist.newNode()
	n.owner = c.gen
	return
}

type freeType int

const (
	ftFreelistFull freeType = iota // node was freed (available for GC, not stored in freelist)
	ftStored                       // node was stored in the freelist for later use
	ftNotOwned                     // node was ignored by COW, since it's owned by another one
)

// freeNode frees a node within a given COW context, if it's owned by that
// context.  It returns what happened to the node (see freeType const
// documentation).
func (c *copyOnWriteContext[T]) freeNode(n *node[T]) freeType {
	if !c.owns(n) {
		return ftNotOwned
	}
	// clear to allow GC
	n.items.truncate(0)
	n.children.truncate(0)
	n.owner = 0
	if c.freelist.freeNode(n) {
		return ftStored
	}
	return ftFreelistFull
}
