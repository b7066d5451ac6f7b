// Package jsp (JSON persistence) provides utilities to store and load
// arbitrary JSON-encoded structures with optional checksumming and
// compression, and an atomic write-then-rename save helper for documents
// that live on the host filesystem (the settings document, trash sidecars).
package jsp

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options controls the optional envelope wrapped around the plain JSON
// encoding of a value.
type Options struct {
	Compression bool // gzip the JSON body
	Checksum    bool // prepend a sha256 hex digest line, verified on Decode
	Indent      bool // pretty-print (applied before gzip when Compression is also set)
}

const checksumPrefixLen = 64 // len(hex(sha256))

// Encode writes v to w per opts.
func Encode(w io.Writer, v interface{}, opts Options) error {
	var body []byte
	var err error
	if opts.Indent {
		body, err = json.MarshalIndent(v, "", "  ")
	} else {
		body, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("jsp: encode: %w", err)
	}
	if opts.Compression {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(body); err != nil {
			return fmt.Errorf("jsp: gzip: %w", err)
		}
		if err := gw.Close(); err != nil {
			return fmt.Errorf("jsp: gzip close: %w", err)
		}
		body = buf.Bytes()
	}
	if opts.Checksum {
		sum := sha256.Sum256(body)
		if _, err := io.WriteString(w, hex.EncodeToString(sum[:])+"\n"); err != nil {
			return err
		}
	}
	_, err = w.Write(body)
	return err
}

// Decode reads a value written by Encode with the same opts into v. tag is
// used only to annotate error messages (e.g. the file path).
func Decode(r io.Reader, v interface{}, opts Options, tag string) error {
	all, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("jsp: read %s: %w", tag, err)
	}
	if opts.Checksum {
		nl := bytes.IndexByte(all, '\n')
		if nl != checksumPrefixLen {
			return fmt.Errorf("jsp: %s: missing or malformed checksum line", tag)
		}
		want := string(all[:nl])
		body := all[nl+1:]
		sum := sha256.Sum256(body)
		if hex.EncodeToString(sum[:]) != want {
			return fmt.Errorf("jsp: %s: checksum mismatch", tag)
		}
		all = body
	}
	if opts.Compression {
		gr, err := gzip.NewReader(bytes.NewReader(all))
		if err != nil {
			return fmt.Errorf("jsp: %s: gzip: %w", tag, err)
		}
		defer gr.Close()
		all, err = io.ReadAll(gr)
		if err != nil {
			return fmt.Errorf("jsp: %s: gunzip: %w", tag, err)
		}
	}
	if err := json.Unmarshal(all, v); err != nil {
		return fmt.Errorf("jsp: %s: unmarshal: %w", tag, err)
	}
	return nil
}

// SaveAtomic encodes v with opts to a temp file in the same directory as
// path, then renames it into place — the write-then-rename sequence the
// teacher's bucket-metadata persistence uses so a reader never observes a
// partially written document.
func SaveAtomic(path string, v interface{}, opts Options) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsp: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsp: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := Encode(tmp, v, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jsp: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsp: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("jsp: rename into place: %w", err)
	}
	return nil
}

// Load reads and decodes the document at path.
func Load(path string, v interface{}, opts Options) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Decode(f, v, opts, path)
}
