// Package snapshot implements the RecurrentStateSnapshot entity and
// its atomic on-disk store: a pair of {blob, token count} written with
// a temp-then-rename discipline so readers never observe a torn file,
// the same pattern the teacher's cache layer relies on for KV-cache
// slot consistency, applied here to whole-state persistence.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// magic identifies the on-disk snapshot format: "SNP1".
var magic = [4]byte{'S', 'N', 'P', '1'}

// State is a captured recurrent-state blob plus the token count it
// covers. The blob is opaque to this package; it is produced and
// consumed only by a modelrt.Model implementation.
type State struct {
	Blob       []byte
	TokenCount int
}

// Error wraps any snapshot-store failure with a human-readable
// reason, matching spec.md's SnapshotError category.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("snapshot: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Save writes st to path atomically: serialize to a sibling temp file
// in the same directory, then rename over the destination. Returns
// the number of bytes written to the final file.
func Save(st State, path string) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if err := writeState(tmp, st); err != nil {
		tmp.Close()
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, &Error{Op: "save", Path: path, Err: err}
	}
	return int(info.Size()), nil
}

func writeState(f *os.File, st State) error {
	if err := binary.Write(f, binary.BigEndian, magic); err != nil {
		return err
	}
	if err := binary.Write(f, binary.BigEndian, uint32(st.TokenCount)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.BigEndian, uint64(len(st.Blob))); err != nil {
		return err
	}
	if len(st.Blob) == 0 {
		return nil
	}
	_, err := f.Write(st.Blob)
	return err
}

// Load reads back a State previously written by Save.
func Load(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		return State{}, &Error{Op: "load", Path: path, Err: err}
	}
	defer f.Close()

	var got [4]byte
	if err := binary.Read(f, binary.BigEndian, &got); err != nil {
		return State{}, &Error{Op: "load", Path: path, Err: fmt.Errorf("short header: %w", err)}
	}
	if got != magic {
		return State{}, &Error{Op: "load", Path: path, Err: fmt.Errorf("bad magic %q", got)}
	}
	var tokenCount uint32
	if err := binary.Read(f, binary.BigEndian, &tokenCount); err != nil {
		return State{}, &Error{Op: "load", Path: path, Err: fmt.Errorf("short token count: %w", err)}
	}
	var blobLen uint64
	if err := binary.Read(f, binary.BigEndian, &blobLen); err != nil {
		return State{}, &Error{Op: "load", Path: path, Err: fmt.Errorf("short blob length: %w", err)}
	}
	blob := make([]byte, blobLen)
	if blobLen > 0 {
		if _, err := io.ReadFull(f, blob); err != nil {
			return State{}, &Error{Op: "load", Path: path, Err: fmt.Errorf("short blob: %w", err)}
		}
	}
	return State{Blob: blob, TokenCount: int(tokenCount)}, nil
}
