package object

import (
	"time"
	"unicode/utf8"
)

// Signature identifies who authored or committed, and when. The timezone
// offset is carried by When's location and survives canonical encoding.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  time.Time `json:"when"`
}

// CommitData holds the logical fields of a commit before it has been stored.
// Message is kept as raw bytes: the store accepts whatever is already in the
// graph, and only the rewrite path insists on valid UTF-8.
type CommitData struct {
	Parents   []ID
	Tree      ID
	Message   []byte
	Author    Signature
	Committer Signature
}

// Commit is an immutable, content-addressed node of the graph. Parents is
// order-significant and may contain duplicates. Two commits with identical
// fields always carry the same ID.
type Commit struct {
	ID         ID
	Parents    []ID
	Tree       ID
	RawMessage []byte
	Author     Signature
	Committer  Signature
}

// Message returns the commit message and whether it decodes as valid UTF-8.
func (c *Commit) Message() (string, bool) {
	if !utf8.Valid(c.RawMessage) {
		return "", false
	}
	return string(c.RawMessage), true
}

// Data returns the logical fields of the commit, without its ID.
func (c *Commit) Data() CommitData {
	parents := make([]ID, len(c.Parents))
	copy(parents, c.Parents)
	msg := make([]byte, len(c.RawMessage))
	copy(msg, c.RawMessage)
	return CommitData{
		Parents:   parents,
		Tree:      c.Tree,
		Message:   msg,
		Author:    c.Author,
		Committer: c.Committer,
	}
}
