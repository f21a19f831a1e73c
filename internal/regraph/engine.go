// Package regraph edits one commit in the content-addressed graph and
// rebuilds every descendant reachable from the chosen refs, then retargets
// those refs. Existing objects are never mutated; the graph only grows.
package regraph

import (
	"fmt"

	"regraph/internal/errors"
	"regraph/internal/object"
	"regraph/internal/refs"
	"regraph/internal/walk"

	"go.uber.org/zap"
)

// ObjectStore is the slice of the object database the engine needs.
type ObjectStore interface {
	CreateCommit(data object.CommitData) (object.ID, error)
	ReadCommit(id object.ID) (*object.Commit, error)
}

// RefStore is the slice of the reference store the engine needs.
type RefStore interface {
	List() ([]refs.Ref, error)
	Resolve(name string) (object.ID, error)
	CompareAndSetTarget(name string, old, newTarget object.ID, auditMessage string) error
}

// Engine owns one read-resolve-rewrite-update sequence at a time. It is not
// re-entrant against itself; callers needing exclusion across processes must
// hold a repository-level lock around Regraph.
type Engine struct {
	objects ObjectStore
	refs    RefStore
	log     *zap.Logger
}

// NewEngine wires an engine over the given collaborators.
func NewEngine(objects ObjectStore, refStore RefStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{objects: objects, refs: refStore, log: log}
}

// Regraph applies edit to the commit identified by target and propagates it
// to every descendant reachable from refsToUpdate, then retargets those
// refs. On any failure no reference has been updated; objects created
// before the failure are unreferenced and inert.
func (e *Engine) Regraph(refsToUpdate RefArg, target object.ID, edit *CommitEdit) error {
	original, err := e.objects.ReadCommit(target)
	if err != nil {
		return err
	}

	editedID, err := edit.materialize(e.objects, original)
	if err != nil {
		return err
	}
	if editedID == target {
		return errors.NoChange()
	}

	remap := RemapTable{target: editedID}

	// Snapshot the refs before rewriting: resolving later could observe our
	// own updates.
	resolved, err := refsToUpdate.resolve(e.refs)
	if err != nil {
		return err
	}

	if err := e.rebuildDescendants(resolved, target, remap); err != nil {
		return err
	}

	e.log.Debug("rebuilt descendants",
		zap.String("edited", target.Short()),
		zap.String("replacement", editedID.Short()),
		zap.Int("commits", len(remap)-1))

	auditMessage := fmt.Sprintf("regraph: update after editing commit %s -> %s", target, editedID)
	return e.updateRefs(resolved, remap, auditMessage)
}

// rebuildDescendants walks everything reachable from the resolved refs,
// hiding the edited commit and its ancestry, in parents-before-children
// order. That ordering is mandatory: each commit's parents are translated
// through remap entries recorded for already-visited commits.
func (e *Engine) rebuildDescendants(resolved []resolvedRef, target object.ID, remap RemapTable) error {
	starts := make([]object.ID, 0, len(resolved))
	for _, ref := range resolved {
		starts = append(starts, ref.target)
	}

	walker := walk.New(e.objects, starts, []object.ID{target})
	for {
		id, err := walker.Next()
		if err == walk.Done {
			return nil
		}
		if err != nil {
			return err
		}

		commit, err := e.objects.ReadCommit(id)
		if err != nil {
			return err
		}
		if !remap.AffectsParents(commit.Parents) {
			// Unaffected: keeps its identity, stays out of the table.
			continue
		}

		if _, ok := commit.Message(); !ok {
			// Skipping would leave a descendant pointing at a divergent,
			// un-rewritable ancestor, so the whole run fails.
			return errors.InvalidMessageEncoding(id.String())
		}

		data := commit.Data()
		data.Parents = remap.RemapParents(commit.Parents)
		replacement, err := e.objects.CreateCommit(data)
		if err != nil {
			return err
		}

		e.log.Debug("rebuilt commit",
			zap.String("old", id.Short()),
			zap.String("new", replacement.Short()))
		remap[id] = replacement
	}
}

// updateRefs retargets every resolved ref whose snapshot target has a remap
// entry, appending one audit entry per transition. Refs outside the table
// are untouched. A ref that moved since it was resolved fails the run.
func (e *Engine) updateRefs(resolved []resolvedRef, remap RemapTable, auditMessage string) error {
	for _, ref := range resolved {
		replacement, ok := remap[ref.target]
		if !ok {
			continue
		}
		if err := e.refs.CompareAndSetTarget(ref.name, ref.target, replacement, auditMessage); err != nil {
			return err
		}
	}
	return nil
}
