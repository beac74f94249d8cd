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
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestFreeListBound(t *testing.T) {
	re := require.New(t)
	const size = 4
	f := NewFreeList[Int](size)
	for i := 0; i < size; i++ {
		re.True(f.freeNode(new(node[Int])))
	}
	for i := 0; i < 3; i++ {
		re.False(f.freeNode(new(node[Int])))
	}
	re.Equal(size, f.Len())

	for i := size; i > 0; i-- {
		re.NotNil(f.newNode())
		re.Equal(i-1, f.Len())
	}
	// An empty list still hands out fresh nodes.
	re.NotNil(f.newNode())
	re.Equal(0, f.Len())
}

func TestFreeNodeOwnership(t *testing.T) {
	re := require.New(t)
	f := NewFreeList[Int](1)
	c1 := newCopyOnWriteContext(f)
	c2 := newCopyOnWriteContext(f)
	re.NotEqual(c1.gen, c2.gen)
	re.NotZero(c1.gen)

	n := c1.newNode()
	n.items = append(n.items, 1, 2, 3)
	n.children = append(n.children, &node[Int]{})
	re.Equal(ftNotOwned, c2.freeNode(n))
	re.Len(n.items, 3)
	re.Equal(c1.gen, n.owner)

	re.Equal(ftStored, c1.freeNode(n))
	re.Empty(n.items)
	re.Empty(n.children)
	re.Zero(n.owner)

	m := c1.newNode()
	re.Same(n, m)
	re.Equal(c1.gen, m.owner)

	re.Equal(ftStored, c2.freeNode(c2.newNode()))
	re.Equal(ftFreelistFull, c1.freeNode(m))
	re.Zero(m.owner)
}

func TestClearReleasesOwnedNodes(t *testing.T) {
	re := require.New(t)
	const size = 16
	f := NewFreeList[Int](size)
	tr := NewWithFreeList(2, f)
	for _, v := range perm(1000) {
		tr.ReplaceOrInsert(v)
	}
	re.Equal(0, f.Len())
	tr.Clear(true)
	re.Equal(size, f.Len())

	// Nodes shared after Clone belong to neither tree, so neither may recycle
	// them.
	f = NewFreeList[Int](size)
	tr = NewWithFreeList(2, f)
	for _, v := range perm(1000) {
		tr.ReplaceOrInsert(v)
	}
	clone := tr.Clone()
	tr.Clear(true)
	re.Equal(0, f.Len())
	re.Equal(rang(1000), all(clone))
	clone.Clear(true)
	re.Equal(0, f.Len())

	f = NewFreeList[Int](size)
	tr = NewWithFreeList(2, f)
	for _, v := range perm(1000) {
		tr.ReplaceOrInsert(v)
	}
	tr.Clear(false)
	re.Equal(0, f.Len())
}

func TestSharedFreeListConcurrentTrees(t *testing.T) {
	re := require.New(t)
	const size = 8
	f := NewFreeList[Int](size)
	var g errgroup.Group
	trees := make([]*BTree[Int], 8)
	for i := range trees {
		trees[i] = NewWithFreeList(3, f)
	}
	for i, tr := range trees {
		i, tr := i, tr
		g.Go(func() error {
			for round := 0; round < 5; round++ {
				for _, v := range perm(500) {
					tr.ReplaceOrInsert(v)
				}
				for _, v := range perm(250) {
					tr.Delete(v)
				}
				if tr.Len() != 250 {
					return fmt.Errorf("tree %d round %d: len %d, want 250", i, round, tr.Len())
				}
				tr.Clear(true)
			}
			for _, v := range perm(500) {
				tr.ReplaceOrInsert(v)
			}
			return nil
		})
	}
	re.NoError(g.Wait())
	re.LessOrEqual(f.Len(), size)
	for _, tr := range trees {
		re.Equal(rang(500), all(tr))
	}
}
