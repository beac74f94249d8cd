// Copyright 2024 The cowtree Authors.
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

package bench

import (
	"math"

	"github.com/cowtree/btree"
	"github.com/petar/GoLLRB/llrb"
)

// Engine names accepted by Config.Engine.
const (
	EngineBTree = "btree"
	EngineLLRB  = "llrb"
)

// store is the ordered-set surface the workloads drive.
type store interface {
	ReplaceOrInsert(key int) (replaced bool)
	Delete(key int) (found bool)
	Get(key int) (found bool)
	AscendGreaterOrEqual(pivot int, iter func(key int) bool)
	Ascend(iter func(key int) bool)
	Descend(iter func(key int) bool)
	Len() int
}

// cloner is implemented by stores that support lazy cloning.
type cloner interface {
	store
	Clone() cloner
}

func newStore(engine string, degree int, fl *btree.FreeList[btree.Int]) store {
	if engine == EngineLLRB {
		return &llrbStore{tree: llrb.New()}
	}
	return &btreeStore{tree: btree.NewWithFreeList(degree, fl)}
}

type btreeStore struct {
	tree *btree.BTree[btree.Int]
}

func (s *btreeStore) ReplaceOrInsert(key int) bool {
	_, replaced := s.tree.ReplaceOrInsert(btree.Int(key))
	return replaced
}

func (s *btreeStore) Delete(key int) bool {
	_, found := s.tree.Delete(btree.Int(key))
	return found
}

func (s *btreeStore) Get(key int) bool {
	return s.tree.Has(btree.Int(key))
}

func (s *btreeStore) AscendGreaterOrEqual(pivot int, iter func(int) bool) {
	s.tree.AscendGreaterOrEqual(btree.Int(pivot), func(i btree.Int) bool {
		return iter(int(i))
	})
}

func (s *btreeStore) Ascend(iter func(int) bool) {
	s.tree.Ascend(func(i btree.Int) bool {
		return iter(int(i))
	})
}

func (s *btreeStore) Descend(iter func(int) bool) {
	s.tree.Descend(func(i btree.Int) bool {
		return iter(int(i))
	})
}

func (s *btreeStore) Len() int {
	return s.tree.Len()
}

func (s *btreeStore) Clone() cloner {
	return &btreeStore{tree: s.tree.Clone()}
}

// llrbInt orders ints inside an llrb tree.
type llrbInt int

func (a llrbInt) Less(than llrb.Item) bool {
	return a < than.(llrbInt)
}

type llrbStore struct {
	tree *llrb.LLRB
}

func (s *llrbStore) ReplaceOrInsert(key int) bool {
	return s.tree.ReplaceOrInsert(llrbInt(key)) != nil
}

func (s *llrbStore) Delete(key int) bool {
	return s.tree.Delete(llrbInt(key)) != nil
}

func (s *llrbStore) Get(key int) bool {
	return s.tree.Get(llrbInt(key)) != nil
}

func (s *llrbStore) AscendGreaterOrEqual(pivot int, iter func(int) bool) {
	s.tree.AscendGreaterOrEqual(llrbInt(pivot), func(i llrb.Item) bool {
		return iter(int(i.(llrbInt)))
	})
}

func (s *llrbStore) Ascend(iter func(int) bool) {
	s.AscendGreaterOrEqual(math.MinInt, iter)
}

func (s *llrbStore) Descend(iter func(int) bool) {
	s.tree.DescendLessOrEqual(llrbInt(math.MaxInt), func(i llrb.Item) bool {
		return iter(int(i.(llrbInt)))
	})
}

func (s *llrbStore) Len() int {
	return s.tree.Len()
}
