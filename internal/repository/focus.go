package repository

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/apply-task/taskengine/internal/atomicfile"
)

// FocusFilename is the fixed name of the focus pointer file (§6.4).
const FocusFilename = ".last"

// Focus is the persisted `.last` pointer: the most recently targeted Item.
type Focus struct {
	Task   string `json:"task,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// FocusStore reads/writes the focus pointer at a tasks root, modeled as an
// explicit dependency object rather than global mutable state (design
// note: Global mutable state).
type FocusStore struct {
	Root string
}

// NewFocusStore returns a FocusStore rooted at root.
func NewFocusStore(root string) *FocusStore {
	return &FocusStore{Root: root}
}

func (f *FocusStore) path() string {
	return filepath.Join(f.Root, FocusFilename)
}

// Get reads the current focus pointer, returning a zero Focus if unset.
func (f *FocusStore) Get() (Focus, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return Focus{}, nil
		}
		return Focus{}, err
	}
	var focus Focus
	if err := json.Unmarshal(data, &focus); err != nil {
		return Focus{}, err
	}
	return focus, nil
}

// Set atomically writes a new focus pointer.
func (f *FocusStore) Set(focus Focus) error {
	data, err := json.Marshal(focus)
	if err != nil {
		return err
	}
	return atomicfile.Write(f.path(), data, 0o644)
}

// Clear removes the focus pointer.
func (f *FocusStore) Clear() error {
	err := os.Remove(f.path())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
