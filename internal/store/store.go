// Package store persists manuscripts to disk. The BWD file is the single
// source of truth: saves are atomic (temp file plus rename), the Modified
// timestamp is refreshed on every save, and a ".xz" extension selects
// xz-compressed storage transparently.
package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/softcover/bowdler/core/bwd"
	"github.com/softcover/bowdler/core/errors"
	"github.com/softcover/bowdler/core/manuscript"
	"github.com/softcover/bowdler/internal/logging"
)

// compressed reports whether a path selects xz storage.
func compressed(path string) bool {
	return strings.HasSuffix(path, ".xz")
}

// Load reads and parses a manuscript file.
func Load(path string) (*manuscript.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, errors.NewIO("decompress", path, err)
		}
		r = xr
	}

	doc, err := bwd.Parse(r)
	if err != nil {
		var fe *errors.FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// Save serializes the document and writes it atomically, refreshing the
// Modified timestamp first. The temp file lives in the target directory so
// the rename never crosses filesystems; a crash mid-save leaves the
// previous file intact.
func Save(path string, doc *manuscript.Document) error {
	doc.Modified = time.Now().UTC().Truncate(time.Second)

	data, err := bwd.SerializeBytes(doc)
	if err != nil {
		return errors.Wrap(err, "serializing manuscript")
	}
	if compressed(path) {
		var buf bytes.Buffer
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			return errors.NewIO("compress", path, err)
		}
		if _, err := xw.Write(data); err != nil {
			return errors.NewIO("compress", path, err)
		}
		if err := xw.Close(); err != nil {
			return errors.NewIO("compress", path, err)
		}
		data = buf.Bytes()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bwd-*")
	if err != nil {
		return errors.NewIO("create temp file", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", path, err)
	}

	logging.Checkpoint(path, len(data))
	return nil
}

// Checkpointer persists a document to a fixed path after each workflow
// pass. It satisfies workflow.Checkpointer.
type Checkpointer struct {
	Path string
}

// Checkpoint saves the document to the configured path.
func (c *Checkpointer) Checkpoint(doc *manuscript.Document) error {
	return Save(c.Path, doc)
}
