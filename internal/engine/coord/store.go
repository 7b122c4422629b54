package coord

import (
	"encoding/json"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// SnapshotFile is the snapshot's name inside the data directory.
const SnapshotFile = "snapshot.json"

var (
	// ErrNoNode is returned for operations on a missing node.
	ErrNoNode = errors.New("node does not exist")
	// ErrNodeExists is returned when a create-only write finds the node.
	ErrNodeExists = errors.New("node already exists")
)

type snapshot struct {
	Nodes map[string][]byte `json:"nodes"`
}

// Store is a persistent node tree. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	nodes map[string][]byte
	fs    afero.Fs
	path  string
}

// Open loads the store persisted in dataDir, or starts an empty one.
func Open(fs afero.Fs, dataDir string) (*Store, error) {
	s := &Store{
		nodes: map[string][]byte{"/": nil},
		fs:    fs,
		path:  filepath.Join(dataDir, SnapshotFile),
	}
	if err := fs.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data directory %s", dataDir)
	}

	data, err := afero.ReadFile(fs, s.path)
	if err != nil {
		if exists, _ := afero.Exists(fs, s.path); !exists {
			return s, nil
		}
		return nil, errors.Wrapf(err, "read snapshot %s", s.path)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %s", s.path)
	}
	for p, v := range snap.Nodes {
		s.nodes[Clean(p)] = v
	}
	return s, nil
}

// Get returns a copy of the node's data.
func (s *Store) Get(p string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.nodes[Clean(p)]
	if !ok {
		return nil, ErrNoNode
	}
	return slices.Clone(data), nil
}

// Set writes data, creating missing parents. With createOnly an existing
// node is left alone and ErrNodeExists returned.
func (s *Store) Set(p string, data []byte, createOnly bool) error {
	p = Clean(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[p]; ok && createOnly {
		return ErrNodeExists
	}
	for parent := path.Dir(p); parent != "/"; parent = path.Dir(parent) {
		if _, ok := s.nodes[parent]; !ok {
			s.nodes[parent] = nil
		}
	}
	s.nodes[p] = slices.Clone(data)
	return s.persist()
}

// Delete removes the node and everything under it.
func (s *Store) Delete(p string) error {
	p = Clean(p)
	if p == "/" {
		return errors.Wrap(errors.ErrInvalidInput, "cannot delete the root node")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[p]; !ok {
		return ErrNoNode
	}
	prefix := p + "/"
	for k := range s.nodes {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(s.nodes, k)
		}
	}
	return s.persist()
}

// Children returns the sorted names of the node's direct children.
func (s *Store) Children(p string) ([]string, error) {
	p = Clean(p)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[p]; !ok {
		return nil, ErrNoNode
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	var names []string
	for k := range s.nodes {
		if k == p || !strings.HasPrefix(k, prefix) {
			continue
		}
		if name := strings.TrimPrefix(k, prefix); !strings.Contains(name, "/") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// persist writes the snapshot. Callers hold mu.
func (s *Store) persist() error {
	data, err := json.Marshal(snapshot{Nodes: s.nodes})
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write snapshot %s", tmp)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "replace snapshot %s", s.path)
	}
	return nil
}
