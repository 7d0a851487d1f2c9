package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirectoryCreationError reports a session directory that could not be
// created. It is fatal before launch.
type DirectoryCreationError struct {
	Path string
	Err  error
}

func (e *DirectoryCreationError) Error() string {
	return fmt.Sprintf("cannot create session directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryCreationError) Unwrap() error {
	return e.Err
}

// Factory creates session directories of the form <base>/<category>/<id>.
type Factory struct {
	Base     string
	Category string
}

// Create makes the session directory for id and returns its absolute path.
// Missing parents are created. The leaf itself must not already exist: a
// same-second collision with a prior run surfaces as a
// *DirectoryCreationError rather than silently reusing the directory.
func (f Factory) Create(id string) (string, error) {
	path := filepath.Join(f.Base, f.Category, id)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &DirectoryCreationError{Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", &DirectoryCreationError{Path: abs, Err: err}
	}

	// Mkdir, not MkdirAll: an existing leaf is a collision, not reuse.
	if err := os.Mkdir(abs, 0o755); err != nil {
		return "", &DirectoryCreationError{Path: abs, Err: err}
	}

	return abs, nil
}
