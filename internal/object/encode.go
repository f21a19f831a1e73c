package object

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const commitVersion = 1

// commitEnvelope is the stored form of a commit. Field values are normalized
// (non-nil slices, unix seconds plus offset minutes) so that encoding is a
// pure function of the commit's content.
type commitEnvelope struct {
	V         int         `json:"v"`
	Kind      string      `json:"kind"`
	Parents   []string    `json:"parents"`
	Tree      string      `json:"tree"`
	Message   []byte      `json:"message"`
	Author    sigEnvelope `json:"author"`
	Committer sigEnvelope `json:"committer"`
}

type sigEnvelope struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Time   int64  `json:"time"`
	Offset int    `json:"offset"` // minutes east of UTC
}

func toSigEnvelope(s Signature) sigEnvelope {
	_, offsetSec := s.When.Zone()
	return sigEnvelope{
		Name:   s.Name,
		Email:  s.Email,
		Time:   s.When.Unix(),
		Offset: offsetSec / 60,
	}
}

func fromSigEnvelope(e sigEnvelope) Signature {
	when := time.Unix(e.Time, 0).UTC()
	if e.Offset != 0 {
		when = when.In(time.FixedZone("", e.Offset*60))
	}
	return Signature{
		Name:  e.Name,
		Email: e.Email,
		When:  when,
	}
}

// EncodeCommit produces the canonical byte form of a commit, the input to
// ID computation.
func EncodeCommit(data CommitData) ([]byte, error) {
	parents := make([]string, len(data.Parents))
	for i, p := range data.Parents {
		parents[i] = string(p)
	}
	msg := data.Message
	if msg == nil {
		msg = []byte{}
	}
	env := commitEnvelope{
		V:         commitVersion,
		Kind:      "commit",
		Parents:   parents,
		Tree:      string(data.Tree),
		Message:   msg,
		Author:    toSigEnvelope(data.Author),
		Committer: toSigEnvelope(data.Committer),
	}
	encoded, err := CanonicalJSON(env)
	if err != nil {
		return nil, fmt.Errorf("encoding commit: %w", err)
	}
	return encoded, nil
}

// DecodeCommit parses canonical commit bytes back into a Commit carrying id.
func DecodeCommit(id ID, data []byte) (*Commit, error) {
	var env commitEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding commit %s: %w", id.Short(), err)
	}
	if env.Kind != "commit" {
		return nil, fmt.Errorf("object %s is a %s, not a commit", id.Short(), env.Kind)
	}
	parents := make([]ID, len(env.Parents))
	for i, p := range env.Parents {
		parents[i] = ID(p)
	}
	msg := env.Message
	if msg == nil {
		msg = []byte{}
	}
	return &Commit{
		ID:         id,
		Parents:    parents,
		Tree:       ID(env.Tree),
		RawMessage: msg,
		Author:     fromSigEnvelope(env.Author),
		Committer:  fromSigEnvelope(env.Committer),
	}, nil
}

// CanonicalJSON produces a deterministic JSON encoding with sorted object
// keys, so identical content always hashes to the same ID.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return canonicalEncode(raw)
}

func canonicalEncode(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, _ := json.Marshal(k)
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			valBytes, err := canonicalEncode(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valBytes...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemBytes, err := canonicalEncode(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemBytes...)
		}
		buf = append(buf, ']')
		return buf, nil

	default:
		return json.Marshal(v)
	}
}
