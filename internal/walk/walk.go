// Package walk provides the reachability traversal over the commit graph:
// every commit reachable from a start set, minus a hidden commit and its
// entire ancestry, ordered so parents are always visited before children.
package walk

import (
	"errors"
	"fmt"

	"regraph/internal/object"
)

// Done is returned by Next once the walk is exhausted.
var Done = errors.New("walk: no more commits")

// CommitReader is the slice of the object store the walker needs.
type CommitReader interface {
	ReadCommit(id object.ID) (*object.Commit, error)
}

// Walker is a single-pass iterator over commit IDs. It never revisits an ID;
// restarting requires a fresh Walker.
type Walker struct {
	reader   CommitReader
	starts   []object.ID
	hidden   []object.ID
	prepared bool
	order    []object.ID
	next     int
}

// New creates a walk from starts, excluding every id in hidden together with
// everything reachable from it.
func New(reader CommitReader, starts, hidden []object.ID) *Walker {
	return &Walker{reader: reader, starts: starts, hidden: hidden}
}

// Next returns the next commit ID in parents-before-children order, or Done.
func (w *Walker) Next() (object.ID, error) {
	if !w.prepared {
		if err := w.prepare(); err != nil {
			return "", err
		}
		w.prepared = true
	}
	if w.next >= len(w.order) {
		return "", Done
	}
	id := w.order[w.next]
	w.next++
	return id, nil
}

func (w *Walker) prepare() error {
	hiddenSet, err := w.ancestryClosure(w.hidden)
	if err != nil {
		return err
	}

	// Discover the included set breadth-first from the starts, keeping the
	// discovery order for determinism, and count the included parent edges
	// of every commit (duplicate parents count once per occurrence).
	included := make(map[object.ID]bool)
	parentEdges := make(map[object.ID]int)
	children := make(map[object.ID][]object.ID)
	var discovered []object.ID

	queue := make([]object.ID, 0, len(w.starts))
	for _, id := range w.starts {
		if hiddenSet[id] || included[id] {
			continue
		}
		included[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		discovered = append(discovered, id)

		commit, err := w.reader.ReadCommit(id)
		if err != nil {
			return fmt.Errorf("walking commit graph: %w", err)
		}
		for _, parent := range commit.Parents {
			if hiddenSet[parent] {
				continue
			}
			parentEdges[id]++
			children[parent] = append(children[parent], id)
			if !included[parent] {
				included[parent] = true
				queue = append(queue, parent)
			}
		}
	}

	// Kahn's ordering over the included subgraph: a commit becomes ready
	// once all of its included parents have been emitted.
	ready := make([]object.ID, 0, len(discovered))
	for _, id := range discovered {
		if parentEdges[id] == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]object.ID, 0, len(discovered))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, child := range children[id] {
			parentEdges[child]--
			if parentEdges[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	if len(order) != len(discovered) {
		// An ID is a pure function of content, so a cycle cannot exist in a
		// well-formed store.
		return fmt.Errorf("walking commit graph: cycle detected among %d commits", len(discovered)-len(order))
	}

	w.order = order
	return nil
}

// ancestryClosure returns ids plus everything reachable from them.
func (w *Walker) ancestryClosure(ids []object.ID) (map[object.ID]bool, error) {
	closure := make(map[object.ID]bool)
	queue := make([]object.ID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() || closure[id] {
			continue
		}
		closure[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		commit, err := w.reader.ReadCommit(id)
		if err != nil {
			return nil, fmt.Errorf("walking hidden ancestry: %w", err)
		}
		for _, parent := range commit.Parents {
			if !closure[parent] {
				closure[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return closure, nil
}
