package store

import (
	"encoding/json"
	"fmt"
	"time"

	"regraph/internal/errors"
	"regraph/internal/object"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
)

// ObjectMeta stores metadata about a stored object.
type ObjectMeta struct {
	Kind       string    `json:"kind"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Options configures Store behavior.
type Options struct {
	CacheSize        int // number of decoded commits to cache
	CompressMinBytes int // minimum payload size before compressing
}

// Store provides content-addressed, append-only object storage on badger.
// Writing the same logical content twice yields the same ID and is a no-op
// the second time, so the store is safe for concurrent writers.
type Store struct {
	db          *badger.DB
	cache       *lru.Cache[object.ID, *object.Commit]
	enc         *zstd.Encoder
	dec         *zstd.Decoder
	compressMin int
}

// New creates a Store on an open badger database.
func New(db *badger.DB, opts Options) (*Store, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = 1000
	}
	if opts.CompressMinBytes == 0 {
		opts.CompressMinBytes = 1024
	}

	cache, err := lru.New[object.ID, *object.Commit](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Store{
		db:          db,
		cache:       cache,
		enc:         enc,
		dec:         dec,
		compressMin: opts.CompressMinBytes,
	}, nil
}

// Close releases compression resources. The badger database is owned by the
// caller and stays open.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

func objectKey(id object.ID) []byte {
	return []byte("obj:" + string(id))
}

func metaKey(id object.ID) []byte {
	return []byte("meta:" + string(id))
}

// CreateCommit materializes a commit with the given fields, returning its
// content-derived ID. Idempotent: an existing identical commit is left as-is.
func (s *Store) CreateCommit(data object.CommitData) (object.ID, error) {
	encoded, err := object.EncodeCommit(data)
	if err != nil {
		return "", errors.StoreFailure("encoding commit", err)
	}
	id, err := object.ComputeID(encoded)
	if err != nil {
		return "", errors.StoreFailure("computing commit id", err)
	}
	if err := s.putObject(id, "commit", encoded); err != nil {
		return "", err
	}
	return id, nil
}

// ReadCommit loads a commit by ID.
func (s *Store) ReadCommit(id object.ID) (*object.Commit, error) {
	if commit, ok := s.cache.Get(id); ok {
		return commit, nil
	}

	payload, meta, err := s.readObject(id)
	if err != nil {
		return nil, err
	}
	if meta.Kind != "commit" {
		return nil, errors.NotFound("commit %s not found (object is a %s)", id.Short(), meta.Kind)
	}

	commit, err := object.DecodeCommit(id, payload)
	if err != nil {
		return nil, errors.StoreFailure(fmt.Sprintf("decoding commit %s", id.Short()), err)
	}
	s.cache.Add(id, commit)
	return commit, nil
}

// PutTree stores opaque tree content, returning its ID. The core copies tree
// IDs verbatim; their internal structure is not interpreted here.
func (s *Store) PutTree(data []byte) (object.ID, error) {
	if data == nil {
		data = []byte{}
	}
	encoded, err := object.CanonicalJSON(map[string]interface{}{
		"v":    1,
		"kind": "tree",
		"data": data,
	})
	if err != nil {
		return "", errors.StoreFailure("encoding tree", err)
	}
	id, err := object.ComputeID(encoded)
	if err != nil {
		return "", errors.StoreFailure("computing tree id", err)
	}
	if err := s.putObject(id, "tree", encoded); err != nil {
		return "", err
	}
	return id, nil
}

// HasObject checks whether an object exists, of any kind.
func (s *Store) HasObject(id object.ID) (bool, error) {
	if _, ok := s.cache.Get(id); ok {
		return true, nil
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(objectKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, errors.StoreFailure(fmt.Sprintf("checking object %s", id.Short()), err)
	}
	return found, nil
}

func (s *Store) putObject(id object.ID, kind string, payload []byte) error {
	meta := ObjectMeta{
		Kind:      kind,
		Size:      int64(len(payload)),
		CreatedAt: time.Now().UTC(),
	}
	stored := payload
	if len(payload) >= s.compressMin {
		stored = s.enc.EncodeAll(payload, nil)
		meta.Compressed = true
	}

	metaData, err := object.CanonicalJSON(meta)
	if err != nil {
		return errors.StoreFailure(fmt.Sprintf("encoding metadata for %s", id.Short()), err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		// Content-addressed: an existing key already holds this exact
		// content, so the second write is a no-op.
		_, err := txn.Get(objectKey(id))
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(objectKey(id), stored); err != nil {
			return err
		}
		return txn.Set(metaKey(id), metaData)
	})
	if err != nil {
		return errors.StoreFailure(fmt.Sprintf("writing object %s", id.Short()), err)
	}
	return nil
}

func (s *Store) readObject(id object.ID) ([]byte, *ObjectMeta, error) {
	var stored []byte
	var metaData []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(id))
		if err != nil {
			return err
		}
		if stored, err = item.ValueCopy(nil); err != nil {
			return err
		}
		metaItem, err := txn.Get(metaKey(id))
		if err != nil {
			return err
		}
		metaData, err = metaItem.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil, errors.NotFound("object %s not found", id.Short())
	}
	if err != nil {
		return nil, nil, errors.StoreFailure(fmt.Sprintf("reading object %s", id.Short()), err)
	}

	var meta ObjectMeta
	if err := decodeMeta(metaData, &meta); err != nil {
		return nil, nil, errors.StoreFailure(fmt.Sprintf("decoding metadata for %s", id.Short()), err)
	}

	payload := stored
	if meta.Compressed {
		payload, err = s.dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, nil, errors.StoreFailure(fmt.Sprintf("decompressing object %s", id.Short()), err)
		}
	}
	return payload, &meta, nil
}

func decodeMeta(data []byte, meta *ObjectMeta) error {
	return json.Unmarshal(data, meta)
}
