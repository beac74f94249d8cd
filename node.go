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
	"fmt"
	"io"
	"sort"
	"strings"
)

// items stores items in a node.
type items[T Item[T]] []T

// insertAt inserts a value into the given index, pushing all subsequent values
// forward.
func (s *items[T]) insertAt(index int, item T) {
	var zero T
	*s = append(*s, zero)
	if index < len(*s) {
		copy((*s)[index+1:], (*s)[index:])
	}
	(*s)[index] = item
}

// removeAt removes a value at a given index, pulling all subsequent values
// back.
func (s *items[T]) removeAt(index int) T {
	item := (*s)[index]
	copy((*s)[index:], (*s)[index+1:])
	var zero T
	(*s)[len(*s)-1] = zero
	*s = (*s)[:len(*s)-1]
	return item
}

// pop removes and returns the last element in the list.
func (s *items[T]) pop() (out T) {
	index := len(*s) - 1
	out = (*s)[index]
	var zero T
	(*s)[index] = zero
	*s = (*s)[:index]
	return
}

// truncate truncates this instance at index so that it contains only the
// first index items. index must be less than or equal to length.
func (s *items[T]) truncate(index int) {
	var toClear items[T]
	*s, toClear = (*s)[:index], (*s)[index:]
	var zero T
	for i := range toClear {
		toClear[i] = zero
	}
}

// find returns the index where the given item should be inserted into this
// list.  'found' is true if the item already exists in the list at the given
// index.
func (s items[T]) find(item T) (index int, found bool) {
	i := sort.Search(len(s), func(i int) bool {
		return item.Less(s[i])
	})
	if i > 0 && !s[i-1].Less(item) {
		return i - 1, true
	}
	return i, false
}

// children stores child nodes in a node.
type children[T Item[T]] []*node[T]

// insertAt inserts a value into the given index, pushing all subsequent values
// forward.
func (s *children[T]) insertAt(index int, n *node[T]) {
	*s = append(*s, nil)
	if index < len(*s) {
		copy((*s)[index+1:], (*s)[index:])
	}
	(*s)[index] = n
}

// removeAt removes a value at a given index, pulling all subsequent values
// back.
func (s *children[T]) removeAt(index int) *node[T] {
	n := (*s)[index]
	copy((*s)[index:], (*s)[index+1:])
	(*s)[len(*s)-1] = nil
	*s = (*s)[:len(*s)-1]
	return n
}

// pop removes and returns the last element in the list.
func (s *children[T]) pop() (out *node[T]) {
	index := len(*s) - 1
	out = (*s)[index]
	(*s)[index] = nil
	*s = (*s)[:index]
	return
}

// truncate truncates this instance at index so that it contains only the
// first index children. index must be less than or equal to length.
func (s *children[T]) truncate(index int) {
	var toClear children[T]
	*s, toClear = (*s)[:index], (*s)[index:]
	for i := range toClear {
		toClear[i] = nil
	}
}

// node is an internal node in a tree.
//
// It must at all times maintain the invariant that either
//   - len(children) == 0, len(items) unconstrained
//   - len(children) == len(items) + 1
type node[T Item[T]] struct {
	items    items[T]
	children children[T]
	owner    generation
}

// mutableFor returns n itself if c owns it, otherwise a shallow copy of n
// owned by c. Children are shared with the original, not copied.
func (n *node[T]) mutableFor(c *copyOnWriteContext[T]) *node[T] {
	if c.owns(n) {
		return n
	}
	out := c.newNode()
	if cap(out.items) >= len(n.items) {
		out.items = out.items[:len(n.items)]
	} else {
		out.items = make(items[T], len(n.items), cap(n.items))
	}
	copy(out.items, n.items)
	if cap(out.children) >= len(n.children) {
		out.children = out.children[:len(n.children)]
	} else {
		out.children = make(children[T], len(n.children), cap(n.children))
	}
	copy(out.children, n.children)
	return out
}

// mutableChild makes child i writable under c and stores the result back into
// n, which must itself already be owned by c.
func (n *node[T]) mutableChild(i int, c *copyOnWriteContext[T]) *node[T] {
	child := n.children[i].mutableFor(c)
	n.children[i] = child
	return child
}

// split splits the given node at the given index.  The current node shrinks,
// and this function returns the item that existed at that index and a new node
// containing all items/children after it.
func (n *node[T]) split(i int, c *copyOnWriteContext[T]) (T, *node[T]) {
	item := n.items[i]
	next := c.newNode()
	next.items = append(next.items, n.items[i+1:]...)
	n.items.truncate(i)
	if len(n.children) > 0 {
		next.children = append(next.children, n.children[i+1:]...)
		n.children.truncate(i + 1)
	}
	return item, next
}

// maybeSplitChild checks if a child should be split, and if so splits it.
// Returns whether or not a split occurred.
func (n *node[T]) maybeSplitChild(i, maxItems int, c *copyOnWriteContext[T]) bool {
	if len(n.children[i].items) < maxItems {
		return false
	}
	first := n.mutableChild(i, c)
	item, second := first.split(maxItems/2, c)
	n.items.insertAt(i, item)
	n.children.insertAt(i+1, second)
	return true
}

// insert inserts an item into the subtree rooted at this node, making sure
// no nodes in the subtree exceed maxItems items.  Should an equivalent item be
// be found/replaced by insert, it will be returned.
func (n *node[T]) insert(item T, maxItems int, c *copyOnWriteContext[T]) (_ T, _ bool) {
	i, found := n.items.find(item)
	if found {
		out := n.items[i]
		n.items[i] = item
		return out, true
	}
	if len(n.children) == 0 {
		n.items.insertAt(i, item)
		return
	}
	if n.maybeSplitChild(i, maxItems, c) {
		inTree := n.items[i]
		switch {
		case item.Less(inTree):
			// no change, we want first split node
		case inTree.Less(item):
			i++ // we want second split node
		default:
			out := n.items[i]
			n.items[i] = item
			return out, true
		}
	}
	return n.mutableChild(i, c).insert(item, maxItems, c)
}

// get finds the given key in the subtree and returns it.
func (n *node[T]) get(key T) (_ T, _ bool) {
	i, found := n.items.find(key)
	if found {
		return n.items[i], true
	} else if len(n.children) > 0 {
		return n.children[i].get(key)
	}
	return
}

// min returns the first item in the subtree.
func min[T Item[T]](n *node[T]) (_ T, found bool) {
	if n == nil {
		return
	}
	for len(n.children) > 0 {
		n = n.children[0]
	}
	if len(n.items) == 0 {
		return
	}
	return n.items[0], true
}

// max returns the last item in the subtree.
func max[T Item[T]](n *node[T]) (_ T, found bool) {
	if n == nil {
		return
	}
	for len(n.children) > 0 {
		n = n.children[len(n.children)-1]
	}
	if len(n.items) == 0 {
		return
	}
	return n.items[len(n.items)-1], true
}

// toRemove details what item to remove in a node.remove call.
type toRemove int

const (
	removeItem toRemove = iota // removes the given item
	removeMin                  // removes smallest item in the subtree
	removeMax                  // removes largest item in the subtree
)

// remove deletes an item from the subtree rooted at n, which c must own.
// Before descending, the target child is grown past minItems if needed and
// then made writable under c, so the recursive call never underflows a node
// or writes into one shared with another tree.
func (n *node[T]) remove(item T, minItems int, typ toRemove, c *copyOnWriteContext[T]) (_ T, _ bool) {
	leaf := len(n.children) == 0
	var i int
	var found bool
	switch typ {
	case removeMin:
		if leaf {
			return n.items.removeAt(0), true
		}
	case removeMax:
		if leaf {
			return n.items.pop(), true
		}
		i = len(n.items)
	case removeItem:
		i, found = n.items.find(item)
		if leaf {
			if !found {
				return
			}
			return n.items.removeAt(i), true
		}
	default:
		panic("invalid type")
	}
	if len(n.children[i].items) <= minItems {
		return n.growChildAndRemove(i, item, minItems, typ, c)
	}
	child := n.mutableChild(i, c)
	if !found {
		return child.remove(item, minItems, typ, c)
	}
	// The item is the separator n.items[i]; its predecessor, the largest item
	// of child i, takes its place.
	out := n.items[i]
	var zero T
	n.items[i], _ = child.remove(zero, minItems, removeMax, c)
	return out, true
}

// growChildAndRemove lifts child i above minItems and retries the removal at
// n. It borrows through a separator from the left sibling, else from the
// right one, and merges with a neighbour when neither can spare an item.
func (n *node[T]) growChildAndRemove(i int, item T, minItems int, typ toRemove, c *copyOnWriteContext[T]) (T, bool) {
	switch {
	case i > 0 && len(n.children[i-1].items) > minItems:
		n.stealFromLeft(i, c)
	case i < len(n.items) && len(n.children[i+1].items) > minItems:
		n.stealFromRight(i, c)
	default:
		if i >= len(n.items) {
			i--
		}
		n.mergeWithRight(i, c)
	}
	return n.remove(item, minItems, typ, c)
}

// stealFromLeft rotates the last item of child i-1 through separator i-1 into
// the front of child i, together with its trailing subtree.
func (n *node[T]) stealFromLeft(i int, c *copyOnWriteContext[T]) {
	child, left := n.mutableChild(i, c), n.mutableChild(i-1, c)
	child.items.insertAt(0, n.items[i-1])
	n.items[i-1] = left.items.pop()
	if len(left.children) > 0 {
		child.children.insertAt(0, left.children.pop())
	}
}

// stealFromRight rotates the first item of child i+1 through separator i onto
// the end of child i, together with its leading subtree.
func (n *node[T]) stealFromRight(i int, c *copyOnWriteContext[T]) {
	child, right := n.mutableChild(i, c), n.mutableChild(i+1, c)
	child.items = append(child.items, n.items[i])
	n.items[i] = right.items.removeAt(0)
	if len(right.children) > 0 {
		child.children = append(child.children, right.children.removeAt(0))
	}
}

// mergeWithRight folds separator i and all of child i+1 into child i. The
// right child is only read, never copied, and goes back to the free list only
// if c owns it.
func (n *node[T]) mergeWithRight(i int, c *copyOnWriteContext[T]) {
	child := n.mutableChild(i, c)
	right := n.children.removeAt(i + 1)
	child.items = append(child.items, n.items.removeAt(i))
	child.items = append(child.items, right.items...)
	child.children = append(child.children, right.children...)
	c.freeNode(right)
}

type direction int

const (
	descend = direction(-1)
	ascend  = direction(+1)
)

type optionalItem[T any] struct {
	item  T
	valid bool
}

func optional[T any](item T) optionalItem[T] {
	return optionalItem[T]{item: item, valid: true}
}

func empty[T any]() optionalItem[T] {
	return optionalItem[T]{}
}

// iterate walks the subtree in dir order, starting at start and stopping
// before stop; either bound may be empty. An item equal to start is visited
// only when includeStart is set.
//
// hit is carried across sibling subtrees and records whether the walk has
// already reached start. The first result returns it to the caller; the
// second is false once the walk must stop.
func (n *node[T]) iterate(dir direction, start, stop optionalItem[T], includeStart bool, hit bool, iter ItemIterator[T]) (bool, bool) {
	if dir == descend {
		return n.descendFrom(start, stop, includeStart, hit, iter)
	}
	return n.ascendFrom(start, stop, includeStart, hit, iter)
}

func (n *node[T]) ascendFrom(start, stop optionalItem[T], includeStart, hit bool, iter ItemIterator[T]) (bool, bool) {
	var ok bool
	i := 0
	if start.valid {
		i, _ = n.items.find(start.item)
	}
	for ; i < len(n.items); i++ {
		if len(n.children) > 0 {
			if hit, ok = n.children[i].ascendFrom(start, stop, includeStart, hit, iter); !ok {
				return hit, false
			}
		}
		item := n.items[i]
		if !includeStart && !hit && start.valid && !start.item.Less(item) {
			hit = true
			continue
		}
		hit = true
		if stop.valid && !item.Less(stop.item) {
			return hit, false
		}
		if !iter(item) {
			return hit, false
		}
	}
	if len(n.children) > 0 {
		return n.children[len(n.children)-1].ascendFrom(start, stop, includeStart, hit, iter)
	}
	return hit, true
}

func (n *node[T]) descendFrom(start, stop optionalItem[T], includeStart, hit bool, iter ItemIterator[T]) (bool, bool) {
	var ok bool
	i := len(n.items) - 1
	if start.valid {
		var found bool
		if i, found = n.items.find(start.item); !found {
			i--
		}
	}
	for ; i >= 0; i-- {
		item := n.items[i]
		if start.valid && !item.Less(start.item) {
			if !includeStart || hit || start.item.Less(item) {
				continue
			}
		}
		if len(n.children) > 0 {
			if hit, ok = n.children[i+1].descendFrom(start, stop, includeStart, hit, iter); !ok {
				return hit, false
			}
		}
		if stop.valid && !stop.item.Less(item) {
			return hit, false
		}
		hit = true
		if !iter(item) {
			return hit, false
		}
	}
	if len(n.children) > 0 {
		return n.children[0].descendFrom(start, stop, includeStart, hit, iter)
	}
	return hit, true
}

// reset returns a subtree to the freelist.  It breaks out immediately if the
// freelist is full, since the only benefit of iterating is to fill that
// freelist up.  Returns true if parent reset call should continue.
func (n *node[T]) reset(c *copyOnWriteContext[T]) bool {
	for _, child := range n.children {
		if !child.reset(c) {
			return false
		}
	}
	return c.freeNode(n) != ftFreelistFull
}

// print is used for testing/debugging purposes.
func (n *node[T]) print(w io.Writer, level int) {
	fmt.Fprintf(w, "%sNODE:%v\n", strings.Repeat("  ", level), n.items)
	for _, c := range n.children {
		c.print(w, level+1)
	}
}
