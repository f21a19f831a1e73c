package refs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"regraph/internal/errors"
	"regraph/internal/object"

	"github.com/google/uuid"
)

// AuditEntry records one reference transition, newest last. Entries are
// append-only JSON lines under logs/<refname>.
type AuditEntry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Old     object.ID `json:"old,omitempty"`
	New     object.ID `json:"new"`
	Message string    `json:"message"`
}

func (s *Store) appendAudit(name string, old, newTarget object.ID, message string) error {
	entry := AuditEntry{
		ID:      uuid.New().String(),
		Time:    time.Now().UTC(),
		Old:     old,
		New:     newTarget,
		Message: message,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.StoreFailure(fmt.Sprintf("encoding audit entry for %s", name), err)
	}
	path := s.logPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.StoreFailure(fmt.Sprintf("creating audit directory for %s", name), err)
	}
	if err := appendFile(path, append(line, '\n')); err != nil {
		return errors.StoreFailure(fmt.Sprintf("appending audit entry for %s", name), err)
	}
	return nil
}

// Audit returns the transition history of name, oldest first. A reference
// that has never moved has no history.
func (s *Store) Audit(name string) ([]AuditEntry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.logPath(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreFailure(fmt.Sprintf("opening audit log for %s", name), err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, errors.StoreFailure(fmt.Sprintf("decoding audit log for %s", name), err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.StoreFailure(fmt.Sprintf("reading audit log for %s", name), err)
	}
	return entries, nil
}
