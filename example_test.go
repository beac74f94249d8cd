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

package btree_test

import (
	"fmt"

	"github.com/cowtree/btree"
)

func ExampleBTree() {
	tr := btree.New[btree.Int](32)
	for i := btree.Int(0); i < 10; i++ {
		tr.ReplaceOrInsert(i)
	}
	fmt.Println("len:       ", tr.Len())
	v, ok := tr.Get(3)
	fmt.Println("get3:      ", v, ok)
	v, ok = tr.Get(100)
	fmt.Println("get100:    ", v, ok)
	v, ok = tr.Delete(4)
	fmt.Println("del4:      ", v, ok)
	v, ok = tr.Delete(100)
	fmt.Println("del100:    ", v, ok)
	v, ok = tr.ReplaceOrInsert(5)
	fmt.Println("replace5:  ", v, ok)
	v, ok = tr.ReplaceOrInsert(100)
	fmt.Println("replace100:", v, ok)
	v, ok = tr.Min()
	fmt.Println("min:       ", v, ok)
	v, ok = tr.DeleteMin()
	fmt.Println("delmin:    ", v, ok)
	v, ok = tr.Max()
	fmt.Println("max:       ", v, ok)
	v, ok = tr.DeleteMax()
	fmt.Println("delmax:    ", v, ok)
	fmt.Println("len:       ", tr.Len())
	// Output:
	// len:        10
	// get3:       3 true
	// get100:     0 false
	// del4:       4 true
	// del100:     0 false
	// replace5:   5 true
	// replace100: 0 false
	// min:        0 true
	// delmin:     0 true
	// max:        100 true
	// delmax:     100 true
	// len:        8
}

func ExampleBTree_Clone() {
	tr := btree.New[btree.Int](2)
	for i := btree.Int(0); i < 5; i++ {
		tr.ReplaceOrInsert(i)
	}
	snapshot := tr.Clone()
	tr.Delete(2)
	tr.ReplaceOrInsert(7)

	show := func(name string, t *btree.BTree[btree.Int]) {
		var out []btree.Int
		t.Ascend(func(i btree.Int) bool {
			out = append(out, i)
			return true
		})
		fmt.Println(name, out)
	}
	show("tree:    ", tr)
	show("snapshot:", snapshot)
	// Output:
	// tree:     [0 1 3 4 7]
	// snapshot: [0 1 2 3 4]
}
