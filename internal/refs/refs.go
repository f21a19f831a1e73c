package refs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"regraph/internal/errors"
	"regraph/internal/object"
)

const (
	// RemotePrefix classifies a reference as remote-tracking by name.
	RemotePrefix = "refs/remotes/"

	// HeadsPrefix is where local branches live.
	HeadsPrefix = "refs/heads/"

	symrefMarker   = "ref: "
	maxSymrefDepth = 10
)

// Ref is one named pointer into the commit graph.
type Ref struct {
	Name     string
	Target   object.ID
	IsRemote bool
}

// Store keeps references as one file per ref under root, like git: direct
// refs hold an object ID, symbolic refs hold "ref: <name>". Every target
// update appends an audit entry under root/logs. Updates are atomic
// (temp+fsync+rename); concurrent movement of a ref between resolve and
// update is detected by CompareAndSetTarget, not merged.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore opens (creating if needed) a ref store rooted at root.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		filepath.Join(root, "refs", "heads"),
		filepath.Join(root, "refs", "remotes"),
		filepath.Join(root, "logs"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating refs directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store lives in.
func (s *Store) Root() string {
	return s.root
}

// ValidateName rejects reference names that could escape the store or that
// no porcelain would ever produce.
func ValidateName(name string) error {
	if name == "HEAD" {
		return nil
	}
	if !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("invalid reference name %q: must be HEAD or start with refs/", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid reference name %q", name)
		}
	}
	if strings.ContainsAny(name, " \t\n\\:*?[~^") {
		return fmt.Errorf("invalid reference name %q", name)
	}
	return nil
}

func (s *Store) refPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *Store) logPath(name string) string {
	return filepath.Join(s.root, "logs", filepath.FromSlash(name))
}

// IsRemote classifies a reference name as remote-tracking.
func IsRemote(name string) bool {
	return strings.HasPrefix(name, RemotePrefix)
}

// read returns either a direct target or the name a symbolic ref points at.
func (s *Store) read(name string) (object.ID, string, error) {
	if err := ValidateName(name); err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(s.refPath(name))
	if os.IsNotExist(err) {
		return "", "", errors.NotFound("reference %s not found", name)
	}
	if err != nil {
		return "", "", errors.StoreFailure(fmt.Sprintf("reading reference %s", name), err)
	}
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, symrefMarker); ok {
		return "", strings.TrimSpace(target), nil
	}
	id, err := object.ParseID(content)
	if err != nil {
		return "", "", errors.StoreFailure(fmt.Sprintf("parsing reference %s", name), err)
	}
	return id, "", nil
}

// Resolve dereferences name, chasing symbolic refs, to a direct target.
func (s *Store) Resolve(name string) (object.ID, error) {
	current := name
	for depth := 0; depth < maxSymrefDepth; depth++ {
		target, sym, err := s.read(current)
		if err != nil {
			return "", err
		}
		if sym == "" {
			return target, nil
		}
		current = sym
	}
	return "", errors.StoreFailure(fmt.Sprintf("resolving reference %s", name),
		fmt.Errorf("symbolic ref chain longer than %d", maxSymrefDepth))
}

// resolveDirect returns the name of the direct ref behind name, so that
// updates through a symbolic ref land on the branch it points at. A missing
// ref resolves to its own name: it is an unborn direct ref.
func (s *Store) resolveDirect(name string) (string, error) {
	current := name
	for depth := 0; depth < maxSymrefDepth; depth++ {
		_, sym, err := s.read(current)
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return current, nil
		}
		if err != nil {
			return "", err
		}
		if sym == "" {
			return current, nil
		}
		current = sym
	}
	return "", errors.StoreFailure(fmt.Sprintf("resolving reference %s", name),
		fmt.Errorf("symbolic ref chain longer than %d", maxSymrefDepth))
}

// List returns every direct reference under refs/, with its target.
func (s *Store) List() ([]Ref, error) {
	var out []Ref
	refsDir := filepath.Join(s.root, "refs")
	err := filepath.WalkDir(refsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		target, sym, err := s.read(name)
		if err != nil {
			return err
		}
		if sym != "" {
			// Symbolic refs are views over direct refs; listing the
			// direct refs alone covers every distinct target.
			return nil
		}
		out = append(out, Ref{Name: name, Target: target, IsRemote: IsRemote(name)})
		return nil
	})
	if err != nil {
		return nil, errors.StoreFailure("listing references", err)
	}
	return out, nil
}

// SetTarget points name (or the direct ref behind it) at newTarget,
// creating it if absent, and appends one audit entry.
func (s *Store) SetTarget(name string, newTarget object.ID, auditMessage string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	direct, err := s.resolveDirect(name)
	if err != nil {
		return err
	}

	var old object.ID
	if target, sym, err := s.read(direct); err == nil && sym == "" {
		old = target
	}
	return s.writeTarget(direct, old, newTarget, auditMessage)
}

// CompareAndSetTarget points name at newTarget only if its current target
// still equals old. A reference that moved since it was resolved fails
// loudly rather than being merged.
func (s *Store) CompareAndSetTarget(name string, old, newTarget object.ID, auditMessage string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	direct, err := s.resolveDirect(name)
	if err != nil {
		return err
	}
	current, _, err := s.read(direct)
	if err != nil {
		return err
	}
	if current != old {
		return errors.StoreFailure(fmt.Sprintf("updating reference %s", name),
			fmt.Errorf("reference moved from %s to %s since it was resolved", old.Short(), current.Short()))
	}
	return s.writeTarget(direct, old, newTarget, auditMessage)
}

// SetSymbolic makes name a symbolic ref pointing at target (e.g. HEAD).
func (s *Store) SetSymbolic(name, target string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateName(target); err != nil {
		return err
	}
	path := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.StoreFailure(fmt.Sprintf("creating directory for %s", name), err)
	}
	if err := writeFileAtomic(path, []byte(symrefMarker+target+"\n")); err != nil {
		return errors.StoreFailure(fmt.Sprintf("writing reference %s", name), err)
	}
	return nil
}

func (s *Store) writeTarget(name string, old, newTarget object.ID, auditMessage string) error {
	path := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.StoreFailure(fmt.Sprintf("creating directory for %s", name), err)
	}
	if err := writeFileAtomic(path, []byte(newTarget.String()+"\n")); err != nil {
		return errors.StoreFailure(fmt.Sprintf("writing reference %s", name), err)
	}
	if err := s.appendAudit(name, old, newTarget, auditMessage); err != nil {
		return err
	}
	return nil
}
