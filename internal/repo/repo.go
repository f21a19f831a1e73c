// Package repo wires the object store, reference store and regraph engine
// together under a .regraph directory.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"regraph/internal/config"
	"regraph/internal/object"
	"regraph/internal/refs"
	"regraph/internal/regraph"
	"regraph/internal/store"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Dir is the repository metadata directory.
const Dir = ".regraph"

// DefaultBranch is where HEAD points in a fresh repository.
const DefaultBranch = "refs/heads/main"

type Repo struct {
	Root    string
	DB      *badger.DB
	Objects *store.Store
	Refs    *refs.Store
	Engine  *regraph.Engine
	Config  *config.Config
	Logger  *zap.Logger
}

// Initialize creates the .regraph layout under root. Safe to call on an
// already-initialized repository.
func Initialize(root string) error {
	metaDir := filepath.Join(root, Dir)
	if err := os.MkdirAll(filepath.Join(metaDir, "db"), 0755); err != nil {
		return fmt.Errorf("creating repository directory: %w", err)
	}

	refStore, err := refs.NewStore(metaDir)
	if err != nil {
		return fmt.Errorf("initializing refs: %w", err)
	}
	if _, err := os.Stat(filepath.Join(metaDir, "HEAD")); os.IsNotExist(err) {
		if err := refStore.SetSymbolic("HEAD", DefaultBranch); err != nil {
			return fmt.Errorf("initializing HEAD: %w", err)
		}
	}

	configPath := filepath.Join(metaDir, "config.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath, config.Default()); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
	}
	return nil
}

// Open opens the repository at root, initializing it first if needed.
func Open(root string, logger *zap.Logger) (*Repo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}
	if err := Initialize(absRoot); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	metaDir := filepath.Join(absRoot, Dir)

	cfg, err := config.Load(filepath.Join(metaDir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(metaDir, "db"))
	opts.Logger = nil // Disable logging noise
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	objects, err := store.New(db, store.Options{
		CacheSize:        cfg.Storage.CacheSize,
		CompressMinBytes: cfg.Storage.CompressMinBytes,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing object store: %w", err)
	}

	refStore, err := refs.NewStore(metaDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing refs: %w", err)
	}

	return &Repo{
		Root:    absRoot,
		DB:      db,
		Objects: objects,
		Refs:    refStore,
		Engine:  regraph.NewEngine(objects, refStore, logger),
		Config:  cfg,
		Logger:  logger,
	}, nil
}

func (r *Repo) Close() error {
	if err := r.Objects.Close(); err != nil {
		r.DB.Close()
		return fmt.Errorf("closing object store: %w", err)
	}
	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Commit stores a new commit and advances refName to it.
func (r *Repo) Commit(data object.CommitData, refName string) (object.ID, error) {
	id, err := r.Objects.CreateCommit(data)
	if err != nil {
		return "", err
	}
	subject, _, _ := strings.Cut(string(data.Message), "\n")
	if err := r.Refs.SetTarget(refName, id, fmt.Sprintf("commit: %s", subject)); err != nil {
		return "", err
	}
	return id, nil
}
