package unit

import (
	"context"
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
	"golang.org/x/sync/singleflight"
)

// GlobalsTable holds one target namespace per source globals dictionary.
// Units sharing a source namespace share the snapshot. A snapshot only
// holds the names some unit referenced.
type GlobalsTable struct {
	mu    sync.Mutex
	snaps map[*source.Dict]*snapshot
	group singleflight.Group
}

type snapshot struct {
	dict *object.Dict
	// slots holds the names that are filled or being filled.
	slots map[string]*slot
}

// slot tracks the conversion of one global. done is closed once the value
// is stored in the snapshot, or once err is set.
type slot struct {
	done chan struct{}
	err  error
}

func filledSlot() *slot {
	s := &slot{done: make(chan struct{})}
	close(s.done)
	return s
}

// fillChain lists the slots the calling goroutine is converting, innermost
// first.
type fillChain struct {
	slot *slot
	next *fillChain
}

type fillChainKey struct{}

func withSlot(ctx context.Context, s *slot) context.Context {
	next, _ := ctx.Value(fillChainKey{}).(*fillChain)
	return context.WithValue(ctx, fillChainKey{}, &fillChain{slot: s, next: next})
}

func converting(ctx context.Context, s *slot) bool {
	for c, _ := ctx.Value(fillChainKey{}).(*fillChain); c != nil; c = c.next {
		if c.slot == s {
			return true
		}
	}
	return false
}

// NewGlobalsTable returns an empty table.
func NewGlobalsTable() *GlobalsTable {
	return &GlobalsTable{snaps: map[*source.Dict]*snapshot{}}
}

func (g *GlobalsTable) get(src *source.Dict) (*snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.snaps[src]
	return s, ok
}

// Snapshot returns the target namespace standing for src. A new snapshot
// starts with the module name of the source namespace, if it has one.
func (g *GlobalsTable) Snapshot(src *source.Dict) *object.Dict {
	if s, ok := g.get(src); ok {
		return s.dict
	}
	v, _, _ := g.group.Do(fmt.Sprintf("%p", src), func() (any, error) {
		if s, ok := g.get(src); ok {
			return s, nil
		}
		s := &snapshot{dict: object.NewDict(), slots: map[string]*slot{}}
		if name, ok := src.Lookup("__name__"); ok {
			if str, ok := name.(source.Str); ok {
				s.dict.SetStr("__name__", object.NewStr(string(str)))
				s.slots["__name__"] = filledSlot()
			}
		}
		g.mu.Lock()
		g.snaps[src] = s
		g.mu.Unlock()
		return s, nil
	})
	return v.(*snapshot).dict
}

// Len returns the number of distinct namespaces snapshotted.
func (g *GlobalsTable) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.snaps)
}

// Fill converts the named entries of src into its snapshot. Names src does
// not define are skipped; they resolve to builtins at run time.
//
// A name being converted by another call is waited for, so Fill returns
// only once every defined name is stored. A name this call chain is
// already converting is skipped, so a value referring back to its own
// namespace does not recurse.
func (g *GlobalsTable) Fill(ctx context.Context, src *source.Dict, names []string, convert func(context.Context, source.Value) (object.Object, error)) error {
	dst := g.Snapshot(src)
	s, _ := g.get(src)
	for _, name := range names {
		v, ok := src.Lookup(name)
		if !ok {
			continue
		}
		sl, owner, err := g.claim(ctx, s, name)
		if err != nil {
			return fmt.Errorf("global %q: %w", name, err)
		}
		if !owner {
			continue
		}
		obj, err := convert(withSlot(ctx, sl), v)
		g.mu.Lock()
		if err != nil {
			delete(s.slots, name)
			sl.err = err
		} else {
			dst.SetStr(name, obj)
		}
		g.mu.Unlock()
		close(sl.done)
		if err != nil {
			return fmt.Errorf("global %q: %w", name, err)
		}
	}
	return nil
}

// claim returns the slot of name and whether the caller now owns its
// conversion. A slot owned elsewhere is waited for; if its conversion
// fails the name is claimed again.
func (g *GlobalsTable) claim(ctx context.Context, s *snapshot, name string) (*slot, bool, error) {
	for {
		g.mu.Lock()
		sl, ok := s.slots[name]
		if !ok {
			sl = &slot{done: make(chan struct{})}
			s.slots[name] = sl
		}
		g.mu.Unlock()
		if !ok {
			return sl, true, nil
		}
		if converting(ctx, sl) {
			return sl, false, nil
		}
		select {
		case <-sl.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		if sl.err == nil {
			return sl, false, nil
		}
	}
}
