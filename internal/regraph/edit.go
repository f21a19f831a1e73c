package regraph

import (
	"regraph/internal/errors"
	"regraph/internal/object"
)

// CommitEdit describes which fields of one commit should change. Each field
// is either "keep the original value" or "replace with the supplied value";
// setting the same field twice is a programming error and panics at the
// call site rather than surfacing as a runtime error.
type CommitEdit struct {
	parents   *[]object.ID
	message   *string
	tree      *object.ID
	author    *object.Signature
	committer *object.Signature
}

// NewCommitEdit returns an edit that keeps every field.
func NewCommitEdit() *CommitEdit {
	return &CommitEdit{}
}

// EditParents replaces the commit's parent sequence. An empty slice clears
// all parents.
func (e *CommitEdit) EditParents(parents []object.ID) *CommitEdit {
	if e.parents != nil {
		panic("regraph: overwriting previous intent to modify parents")
	}
	cloned := make([]object.ID, len(parents))
	copy(cloned, parents)
	e.parents = &cloned
	return e
}

// EditMessage replaces the commit message.
func (e *CommitEdit) EditMessage(message string) *CommitEdit {
	if e.message != nil {
		panic("regraph: overwriting previous intent to modify message")
	}
	e.message = &message
	return e
}

// EditTree replaces the commit's tree.
func (e *CommitEdit) EditTree(tree object.ID) *CommitEdit {
	if e.tree != nil {
		panic("regraph: overwriting previous intent to modify tree")
	}
	e.tree = &tree
	return e
}

// EditAuthor replaces the commit's author signature.
func (e *CommitEdit) EditAuthor(author object.Signature) *CommitEdit {
	if e.author != nil {
		panic("regraph: overwriting previous intent to modify author")
	}
	e.author = &author
	return e
}

// EditCommitter replaces the commit's committer signature.
func (e *CommitEdit) EditCommitter(committer object.Signature) *CommitEdit {
	if e.committer != nil {
		panic("regraph: overwriting previous intent to modify committer")
	}
	e.committer = &committer
	return e
}

// materialize substitutes the edit's overrides over original's fields and
// creates the resulting commit. The new object may turn out unused (for a
// no-op edit); content-addressed creation makes that harmless.
func (e *CommitEdit) materialize(objects ObjectStore, original *object.Commit) (object.ID, error) {
	data := original.Data()

	if e.parents != nil {
		parents := make([]object.ID, len(*e.parents))
		copy(parents, *e.parents)
		data.Parents = parents
	}
	if e.message != nil {
		data.Message = []byte(*e.message)
	} else if _, ok := original.Message(); !ok {
		return "", errors.InvalidMessageEncoding(original.ID.String())
	}
	if e.tree != nil {
		data.Tree = *e.tree
	}
	if e.author != nil {
		data.Author = *e.author
	}
	if e.committer != nil {
		data.Committer = *e.committer
	}

	return objects.CreateCommit(data)
}
