package permission

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// grantsFile is the on-disk layout:
//
//	[grants]
//	camera = "granted"
type grantsFile struct {
	Grants map[string]string `toml:"grants"`
}

// Store persists permission decisions in a TOML file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store for path. The file is created on the first Set.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Get returns the persisted status of capability, Unknown if never decided.
func (s *Store) Get(capability string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return Unknown, err
	}
	return ParseStatus(f.Grants[capability])
}

// Set persists the status of capability.
func (s *Store) Set(capability string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	if st == Unknown {
		delete(f.Grants, capability)
	} else {
		f.Grants[capability] = st.String()
	}
	return s.write(f)
}

// Reset forgets every decision.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove permission file: %w", err)
	}
	return nil
}

// All returns every persisted decision.
func (s *Store) All() (map[string]Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Status, len(f.Grants))
	for k, v := range f.Grants {
		st, err := ParseStatus(v)
		if err != nil {
			return nil, fmt.Errorf("grant %s: %w", k, err)
		}
		out[k] = st
	}
	return out, nil
}

func (s *Store) read() (*grantsFile, error) {
	f := &grantsFile{Grants: map[string]string{}}
	if _, err := toml.DecodeFile(s.path, f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("decode permission file: %w", err)
	}
	if f.Grants == nil {
		f.Grants = map[string]string{}
	}
	return f, nil
}

func (s *Store) write(f *grantsFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create permission dir: %w", err)
	}
	tmp := s.path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create permission file: %w", err)
	}
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode permission file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close permission file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
