// Package store persists one pipeline snapshot per application as a YAML
// record and serializes concurrent updates with an optimistic
// read-compute-write cycle: read the current snapshot, derive a new one
// through the pure snapshot mutators, and write it back only if the record's
// generation is unchanged.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/convoycd/convoy/internal/lock"
	"github.com/convoycd/convoy/internal/model"
	"github.com/convoycd/convoy/internal/yamlio"
)

// ErrConflict is returned when an update loses the compare-and-swap race
// against an out-of-process writer on every retry.
var ErrConflict = errors.New("application record updated concurrently")

const updateRetries = 3

// Store is a directory of application records.
type Store struct {
	dir   string
	locks *lock.MutexMap
	now   func() time.Time
}

// New opens (creating if needed) a record directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	return &Store{dir: dir, locks: lock.NewMutexMap(), now: time.Now}, nil
}

// Get returns the current snapshot for an application. An application with
// no record yet is an empty snapshot, not an error.
func (s *Store) Get(application string) (*model.Snapshot, error) {
	if err := validateName(application); err != nil {
		return nil, err
	}
	doc, _, err := s.read(application)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return model.EmptySnapshot(), nil
	}
	return decodeDoc(*doc)
}

// Update applies fn to the application's current snapshot and persists the
// result. In-process callers are serialized by a per-application mutex;
// against out-of-process writers the record's generation counter is checked
// before writing and the whole read-compute-write cycle retried on conflict.
func (s *Store) Update(application string, fn func(*model.Snapshot) (*model.Snapshot, error)) (*model.Snapshot, error) {
	if err := validateName(application); err != nil {
		return nil, err
	}

	s.locks.Lock(application)
	defer s.locks.Unlock(application)

	for attempt := 0; attempt < updateRetries; attempt++ {
		doc, generation, err := s.read(application)
		if err != nil {
			return nil, err
		}

		snapshot := model.EmptySnapshot()
		if doc != nil {
			snapshot, err = decodeDoc(*doc)
			if err != nil {
				return nil, fmt.Errorf("decode record for %q: %w", application, err)
			}
		}

		next, err := fn(snapshot)
		if err != nil {
			return nil, err
		}

		current, err := s.generation(application)
		if err != nil {
			return nil, err
		}
		if current != generation {
			continue
		}

		out := encodeDoc(application, generation+1, next, s.now())
		if err := yamlio.AtomicWrite(s.path(application), out); err != nil {
			return nil, fmt.Errorf("write record for %q: %w", application, err)
		}
		return next, nil
	}
	return nil, fmt.Errorf("update %q: %w", application, ErrConflict)
}

// List returns the registered application names in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read registry dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".bak") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// read returns the decoded record document and its generation, or (nil, 0)
// when no record exists.
func (s *Store) read(application string) (*applicationDoc, int64, error) {
	content, err := os.ReadFile(s.path(application))
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read record for %q: %w", application, err)
	}
	if err := yamlio.ValidateSchemaHeaderFromBytes(content, yamlio.FileTypeApplication); err != nil {
		return nil, 0, fmt.Errorf("record for %q: %w", application, err)
	}
	var doc applicationDoc
	if err := yamlv3.Unmarshal(content, &doc); err != nil {
		return nil, 0, fmt.Errorf("parse record for %q: %w", application, err)
	}
	return &doc, doc.Generation, nil
}

// generation re-reads just the generation counter, 0 when no record exists.
func (s *Store) generation(application string) (int64, error) {
	doc, generation, err := s.read(application)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, nil
	}
	return generation, nil
}

func (s *Store) path(application string) string {
	return filepath.Join(s.dir, application+".yaml")
}

func validateName(application string) error {
	if application == "" {
		return fmt.Errorf("application name must not be empty")
	}
	if strings.ContainsAny(application, "/\\") || application == "." || application == ".." {
		return fmt.Errorf("invalid application name %q", application)
	}
	return nil
}
