package regraph

import (
	"fmt"
	"testing"
	"time"

	"regraph/internal/errors"
	"regraph/internal/object"
	"regraph/internal/refs"
	"regraph/internal/store"
	"regraph/internal/walk"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testRepo struct {
	t       *testing.T
	objects *store.Store
	refs    *refs.Store
	engine  *Engine
	labels  map[string]object.ID
}

func newTestRepo(t *testing.T) *testRepo {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	objects, err := store.New(db, store.Options{})
	require.NoError(t, err)

	refStore, err := refs.NewStore(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		objects.Close()
		db.Close()
	})

	return &testRepo{
		t:       t,
		objects: objects,
		refs:    refStore,
		engine:  NewEngine(objects, refStore, zap.NewNop()),
		labels:  make(map[string]object.ID),
	}
}

func (r *testRepo) signature(label string, sec int64) object.Signature {
	return object.Signature{
		Name:  label + "-author",
		Email: label + "-email",
		When:  time.Unix(sec, 0).UTC(),
	}
}

// addCommit stores a commit labelled by its message, with its own tree, at
// the given time, with parents given by label.
func (r *testRepo) addCommit(label string, sec int64, parents ...string) object.ID {
	require.NotContains(r.t, r.labels, label, "no duplicate commit labels")

	tree, err := r.objects.PutTree([]byte(label + "-tree"))
	require.NoError(r.t, err)

	parentIDs := make([]object.ID, len(parents))
	for i, p := range parents {
		id, ok := r.labels[p]
		require.True(r.t, ok, "unknown parent label %s", p)
		parentIDs[i] = id
	}

	id, err := r.objects.CreateCommit(object.CommitData{
		Parents:   parentIDs,
		Tree:      tree,
		Message:   []byte(label),
		Author:    r.signature(label, sec),
		Committer: r.signature(label+"-c", sec),
	})
	require.NoError(r.t, err)
	r.labels[label] = id
	return id
}

func (r *testRepo) branch(name, label string) {
	id, ok := r.labels[label]
	require.True(r.t, ok, "unknown label %s", label)
	require.NoError(r.t, r.refs.SetTarget("refs/heads/"+name, id, "branch: created from "+label))
}

func (r *testRepo) id(label string) object.ID {
	id, ok := r.labels[label]
	require.True(r.t, ok, "unknown label %s", label)
	return id
}

func (r *testRepo) resolve(name string) object.ID {
	id, err := r.refs.Resolve(name)
	require.NoError(r.t, err)
	return id
}

// reachable walks from a ref and indexes the found commits by message label.
func (r *testRepo) reachable(refName string) map[string]*object.Commit {
	target := r.resolve(refName)
	out := make(map[string]*object.Commit)
	walker := walk.New(r.objects, []object.ID{target}, nil)
	for {
		id, err := walker.Next()
		if err == walk.Done {
			return out
		}
		require.NoError(r.t, err)
		commit, err := r.objects.ReadCommit(id)
		require.NoError(r.t, err)
		label, ok := commit.Message()
		require.True(r.t, ok)
		out[label] = commit
	}
}

func (r *testRepo) squashFixture() {
	r.addCommit("A", 0)           // main root
	r.addCommit("B", 1)           // subtree root
	r.addCommit("C", 2, "B")      // more than one commit in the subtree
	r.addCommit("D", 3, "A", "C") // subtree merged into main
	r.addCommit("E", 4, "D")      // commit after the merge
	r.branch("main", "E")
}

func TestRegraphSquashToRoot(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()

	// Squash B-C by removing the parents of C.
	err := r.engine.Regraph(AllLocalRefs(), r.id("C"), NewCommitEdit().EditParents(nil))
	require.NoError(t, err)

	commits := r.reachable("refs/heads/main")

	assert.Equal(t, r.id("A"), commits["A"].ID,
		"commit 'A' should remain unaffected, since it doesn't depend on 'C'")

	assert.NotContains(t, commits, "B", "commit 'B' should no longer be in the graph")

	require.Contains(t, commits, "C")
	assert.Empty(t, commits["C"].Parents, "commit 'C' should have no parent")
	assert.NotEqual(t, r.id("C"), commits["C"].ID)

	require.Contains(t, commits, "D")
	require.Len(t, commits["D"].Parents, 2, "commit 'D' should still have 2 parents")
	assert.Equal(t, commits["A"].ID, commits["D"].Parents[0],
		"commit 'D' should still have 'A' as its first parent")
	assert.Equal(t, commits["C"].ID, commits["D"].Parents[1],
		"commit 'D' should still have 'C' as its second parent")

	assert.Contains(t, commits, "E", "commit 'E' is updated")

	// All commits keep their trees and signatures byte for byte.
	for label, rebuilt := range commits {
		original, err := r.objects.ReadCommit(r.id(label))
		require.NoError(t, err)

		assert.Equal(t, original.Tree, rebuilt.Tree, "%s's tree should be untouched", label)
		assert.Equal(t, original.RawMessage, rebuilt.RawMessage, "%s's message should be untouched", label)
		assert.Equal(t, original.Author, rebuilt.Author, "%s's author should be untouched", label)
		assert.Equal(t, original.Committer, rebuilt.Committer, "%s's committer should be untouched", label)
	}
}

func TestRegraphNoChange(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()
	before := r.resolve("refs/heads/main")

	t.Run("empty edit", func(t *testing.T) {
		err := r.engine.Regraph(AllLocalRefs(), r.id("C"), NewCommitEdit())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNoChange))
	})

	t.Run("edit reproducing the original content", func(t *testing.T) {
		original, err := r.objects.ReadCommit(r.id("C"))
		require.NoError(t, err)

		err = r.engine.Regraph(AllLocalRefs(), r.id("C"),
			NewCommitEdit().EditParents(original.Parents))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNoChange))
	})

	assert.Equal(t, before, r.resolve("refs/heads/main"), "a failed edit must not move refs")
}

func TestRegraphLeavesUnaffectedBranchAlone(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()
	r.branch("stable", "A")

	err := r.engine.Regraph(AllLocalRefs(), r.id("C"), NewCommitEdit().EditParents(nil))
	require.NoError(t, err)

	assert.Equal(t, r.id("A"), r.resolve("refs/heads/stable"),
		"a branch whose target was not remapped keeps its target")

	entries, err := r.refs.Audit("refs/heads/stable")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "an untouched ref gains no audit entry")
}

func TestRegraphExplicitRefList(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()
	r.branch("feature", "E")

	err := r.engine.Regraph(RefList("refs/heads/main"), r.id("C"),
		NewCommitEdit().EditMessage("C, squashed"))
	require.NoError(t, err)

	assert.NotEqual(t, r.id("E"), r.resolve("refs/heads/main"), "main moves")
	assert.Equal(t, r.id("E"), r.resolve("refs/heads/feature"),
		"a ref outside the requested set keeps its target even when affected")
}

func TestRegraphLeavesRemoteRefsUntouched(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()
	require.NoError(t, r.refs.SetTarget("refs/remotes/origin/main", r.id("E"), "fetched"))

	err := r.engine.Regraph(AllLocalRefs(), r.id("C"), NewCommitEdit().EditParents(nil))
	require.NoError(t, err)

	assert.NotEqual(t, r.id("E"), r.resolve("refs/heads/main"))
	assert.Equal(t, r.id("E"), r.resolve("refs/remotes/origin/main"),
		"all-local mode never updates remote-tracking refs")
}

func TestRegraphChangesAuthor(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()

	newAuthor := object.Signature{
		Name:  "rewritten-author",
		Email: "rewritten-email",
		When:  time.Unix(99, 0).UTC(),
	}
	err := r.engine.Regraph(AllLocalRefs(), r.id("C"), NewCommitEdit().EditAuthor(newAuthor))
	require.NoError(t, err)

	commits := r.reachable("refs/heads/main")
	assert.Equal(t, newAuthor, commits["C"].Author)
	assert.Equal(t, r.signature("C-c", 2), commits["C"].Committer, "committer untouched")
	assert.Contains(t, commits, "B", "ancestry is unchanged by an author edit")
	assert.Equal(t, r.id("B"), commits["C"].Parents[0])
}

func TestRegraphSwapsTree(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()

	newTree, err := r.objects.PutTree([]byte("replacement-tree"))
	require.NoError(t, err)

	err = r.engine.Regraph(AllLocalRefs(), r.id("C"), NewCommitEdit().EditTree(newTree))
	require.NoError(t, err)

	commits := r.reachable("refs/heads/main")
	assert.Equal(t, newTree, commits["C"].Tree)

	originalD, err := r.objects.ReadCommit(r.id("D"))
	require.NoError(t, err)
	assert.Equal(t, originalD.Tree, commits["D"].Tree, "descendant trees are untouched")
}

func TestRegraphPreservesDuplicateParents(t *testing.T) {
	r := newTestRepo(t)
	r.addCommit("A", 0)
	r.addCommit("B", 1)
	r.addCommit("M", 2, "B", "A", "B")
	r.branch("main", "M")

	err := r.engine.Regraph(AllLocalRefs(), r.id("B"), NewCommitEdit().EditMessage("B'"))
	require.NoError(t, err)

	commits := r.reachable("refs/heads/main")
	require.Contains(t, commits, "B'")
	newB := commits["B'"].ID

	require.Len(t, commits["M"].Parents, 3, "parent count is preserved")
	assert.Equal(t, []object.ID{newB, r.id("A"), newB}, commits["M"].Parents,
		"order and duplication are preserved, only values change")
}

func TestRegraphInvalidMessageEncoding(t *testing.T) {
	t.Run("on a descendant", func(t *testing.T) {
		r := newTestRepo(t)
		r.addCommit("A", 0)
		r.addCommit("B", 1, "A")
		badID, err := r.objects.CreateCommit(object.CommitData{
			Parents:   []object.ID{r.id("B")},
			Message:   []byte{0xff, 0xfe, 0xfd},
			Author:    r.signature("bad", 2),
			Committer: r.signature("bad-c", 2),
		})
		require.NoError(t, err)
		require.NoError(t, r.refs.SetTarget("refs/heads/main", badID, "branch"))
		before := r.resolve("refs/heads/main")

		err = r.engine.Regraph(AllLocalRefs(), r.id("A"), NewCommitEdit().EditMessage("A, edited"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidMessageEncoding))

		var typed *errors.Error
		require.ErrorAs(t, err, &typed)
		assert.Equal(t, badID.String(), typed.Commit)

		assert.Equal(t, before, r.resolve("refs/heads/main"), "no reference is updated on failure")
	})

	t.Run("on the edited commit itself", func(t *testing.T) {
		r := newTestRepo(t)
		badID, err := r.objects.CreateCommit(object.CommitData{
			Message:   []byte{0xff, 0xfe},
			Author:    r.signature("bad", 0),
			Committer: r.signature("bad-c", 0),
		})
		require.NoError(t, err)
		require.NoError(t, r.refs.SetTarget("refs/heads/main", badID, "branch"))

		newTree, err := r.objects.PutTree([]byte("tree"))
		require.NoError(t, err)

		err = r.engine.Regraph(AllLocalRefs(), badID, NewCommitEdit().EditTree(newTree))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidMessageEncoding))
	})

	t.Run("a message override sidesteps the bad original", func(t *testing.T) {
		r := newTestRepo(t)
		badID, err := r.objects.CreateCommit(object.CommitData{
			Message:   []byte{0xff, 0xfe},
			Author:    r.signature("bad", 0),
			Committer: r.signature("bad-c", 0),
		})
		require.NoError(t, err)
		require.NoError(t, r.refs.SetTarget("refs/heads/main", badID, "branch"))

		err = r.engine.Regraph(AllLocalRefs(), badID, NewCommitEdit().EditMessage("readable again"))
		require.NoError(t, err)

		commits := r.reachable("refs/heads/main")
		assert.Contains(t, commits, "readable again")
	})
}

func TestRegraphTargetNotFound(t *testing.T) {
	r := newTestRepo(t)
	r.addCommit("A", 0)
	r.branch("main", "A")

	missing, err := object.ComputeID([]byte("never stored"))
	require.NoError(t, err)

	err = r.engine.Regraph(AllLocalRefs(), missing, NewCommitEdit().EditMessage("x"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestRegraphAuditMessage(t *testing.T) {
	r := newTestRepo(t)
	r.squashFixture()

	err := r.engine.Regraph(AllLocalRefs(), r.id("C"), NewCommitEdit().EditParents(nil))
	require.NoError(t, err)

	// The replacement id is recoverable because creation is idempotent.
	original, err := r.objects.ReadCommit(r.id("C"))
	require.NoError(t, err)
	data := original.Data()
	data.Parents = nil
	newC, err := r.objects.CreateCommit(data)
	require.NoError(t, err)

	entries, err := r.refs.Audit("refs/heads/main")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	last := entries[len(entries)-1]
	assert.Equal(t, fmt.Sprintf("regraph: update after editing commit %s -> %s", r.id("C"), newC),
		last.Message)
	assert.Equal(t, r.id("E"), last.Old)
	assert.Equal(t, r.resolve("refs/heads/main"), last.New)
}

func TestCommitEditSetOncePanics(t *testing.T) {
	sig := object.Signature{Name: "n", Email: "e", When: time.Unix(0, 0).UTC()}

	assert.Panics(t, func() {
		NewCommitEdit().EditParents(nil).EditParents(nil)
	})
	assert.Panics(t, func() {
		NewCommitEdit().EditMessage("a").EditMessage("b")
	})
	assert.Panics(t, func() {
		NewCommitEdit().EditTree("t").EditTree("t")
	})
	assert.Panics(t, func() {
		NewCommitEdit().EditAuthor(sig).EditAuthor(sig)
	})
	assert.Panics(t, func() {
		NewCommitEdit().EditCommitter(sig).EditCommitter(sig)
	})
}

func TestRemapTable(t *testing.T) {
	table := RemapTable{"old": "new"}

	assert.True(t, table.AffectsParents([]object.ID{"x", "old"}))
	assert.False(t, table.AffectsParents([]object.ID{"x", "y"}))

	remapped := table.RemapParents([]object.ID{"old", "x", "old"})
	assert.Equal(t, []object.ID{"new", "x", "new"}, remapped)
}
