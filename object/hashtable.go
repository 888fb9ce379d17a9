package object

import "context"

// entry is one slot of an insertion-ordered hash table. Deleted slots have a
// nil key until the table is compacted.
type entry struct {
	key   Object
	hash  int64
	value Object
}

// table is the insertion-ordered hash table shared by Dict, Set and
// FrozenSet.
type table struct {
	entries []entry
	index   map[int64][]int
	used    int
	// gen changes whenever entry positions move, invalidating iterators.
	gen uint64
}

func (t *table) init() {
	if t.index == nil {
		t.index = make(map[int64][]int)
	}
}

// find returns the position of key, or -1.
func (t *table) find(ctx context.Context, key Object, h int64) (int, error) {
	bucket := t.index[h]
	for n := 0; n < len(bucket); n++ {
		i := bucket[n]
		if i >= len(t.entries) {
			continue
		}
		k := t.entries[i].key
		if k == nil {
			continue
		}
		if k == key {
			return i, nil
		}
		eq, err := Equal(ctx, k, key)
		if err != nil {
			return -1, err
		}
		if eq {
			return i, nil
		}
		bucket = t.index[h]
	}
	return -1, nil
}

// findStr is find specialised to string keys; it never runs user code.
func (t *table) findStr(s string, h int64) int {
	for _, i := range t.index[h] {
		if k, ok := t.entries[i].key.(*Str); ok && k.value == s {
			return i
		}
	}
	return -1
}

func (t *table) insert(ctx context.Context, key Object, h int64, value Object) error {
	i, err := t.find(ctx, key, h)
	if err != nil {
		return err
	}
	if i >= 0 {
		t.entries[i].value = value
		return nil
	}
	t.appendEntry(key, h, value)
	return nil
}

func (t *table) appendEntry(key Object, h int64, value Object) {
	t.init()
	t.entries = append(t.entries, entry{key: key, hash: h, value: value})
	t.index[h] = append(t.index[h], len(t.entries)-1)
	t.used++
}

func (t *table) removeAt(i int) {
	h := t.entries[i].hash
	bucket := t.index[h]
	for n, j := range bucket {
		if j == i {
			bucket = append(bucket[:n:n], bucket[n+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(t.index, h)
	} else {
		t.index[h] = bucket
	}
	t.entries[i] = entry{}
	t.used--
	if len(t.entries) > 16 && t.used < len(t.entries)/2 {
		t.compact()
	}
}

func (t *table) compact() {
	live := make([]entry, 0, t.used)
	for _, e := range t.entries {
		if e.key != nil {
			live = append(live, e)
		}
	}
	t.entries = live
	t.index = make(map[int64][]int, len(live))
	for i, e := range live {
		t.index[e.hash] = append(t.index[e.hash], i)
	}
	t.gen++
}

func (t *table) clear() {
	t.entries = nil
	t.index = nil
	t.used = 0
	t.gen++
}

// live returns a snapshot of the occupied entries in insertion order.
func (t *table) live() []entry {
	out := make([]entry, 0, t.used)
	for _, e := range t.entries {
		if e.key != nil {
			out = append(out, e)
		}
	}
	return out
}

func (t *table) copy() table {
	var c table
	for _, e := range t.entries {
		if e.key != nil {
			c.appendEntry(e.key, e.hash, e.value)
		}
	}
	return c
}

// last returns the position of the most recently inserted entry, or -1.
func (t *table) last() int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].key != nil {
			return i
		}
	}
	return -1
}

// tableIter walks a table in insertion order and detects concurrent
// modification the way dict and set iterators do.
type tableIter struct {
	t    *table
	pos  int
	size int
	gen  uint64
	what string
}

func newTableIter(t *table, what string) tableIter {
	return tableIter{t: t, size: t.used, gen: t.gen, what: what}
}

func (it *tableIter) next() (entry, bool, error) {
	if it.t == nil {
		return entry{}, false, nil
	}
	if it.t.used != it.size {
		it.t = nil
		return entry{}, false, RuntimeErrorf("%s changed size during iteration", it.what)
	}
	if it.t.gen != it.gen {
		it.t = nil
		return entry{}, false, RuntimeErrorf("%s keys changed during iteration", it.what)
	}
	for it.pos < len(it.t.entries) {
		e := it.t.entries[it.pos]
		it.pos++
		if e.key != nil {
			return e, true, nil
		}
	}
	it.t = nil
	return entry{}, false, nil
}

func (it *tableIter) remaining() int {
	if it.t == nil {
		return 0
	}
	n := 0
	for _, e := range it.t.entries[it.pos:] {
		if e.key != nil {
			n++
		}
	}
	return n
}
