package sampling

import (
	"fmt"
	"os"
	"path/filepath"
)

// Error wraps a profile-store failure, matching spec.md's
// ProfileError category.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sampling: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Save persists p to path as compact JSON, atomically (temp file in
// the same directory, then rename). Returns the byte count written.
func Save(p Profile, path string) (int, error) {
	data, err := p.MarshalCompactJSON()
	if err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	return len(data), nil
}

// Load reads a profile from path, falling back to fallback's values
// for any field missing from the file.
func Load(path string, fallback Profile) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, &Error{Op: "load", Path: path, Err: err}
	}
	p, err := UnmarshalJSONWithDefaults(data, fallback)
	if err != nil {
		return Profile{}, &Error{Op: "load", Path: path, Err: err}
	}
	return p, nil
}
