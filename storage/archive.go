package storage

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	kzip "github.com/klauspost/compress/flate"
	kgzip "github.com/klauspost/compress/gzip"

	"github.com/golang/glog"

	"github.com/sesukyothole/filevault/cmn"
)

// Format is the archive container requested by the caller.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTarGz  Format = "targz"
	defaultLarge        = 100 << 20 // ARCHIVE_LARGE_BYTES default: 100 MiB
)

// ArchiveStreamer assembles a zip or tar.gz of one or more already-resolved
// host paths and streams it directly to w — never materializing the whole
// archive in memory (spec §4.7).
type ArchiveStreamer struct {
	adapter    *LocalAdapter
	largeBytes int64
}

// NewArchiveStreamer builds a streamer over adapter; largeBytes is
// ARCHIVE_LARGE_MB*MiB, or the default 100 MiB if zero.
func NewArchiveStreamer(adapter *LocalAdapter, largeBytes int64) *ArchiveStreamer {
	if largeBytes <= 0 {
		largeBytes = defaultLarge
	}
	return &ArchiveStreamer{adapter: adapter, largeBytes: largeBytes}
}

// ArchiveEntry names one item to include in the archive: its host path (already
// resolved and proven within the caller's root) and the virtual path used to
// compute its arcname.
type ArchiveEntry struct {
	HostPath string
	Virtual  string
}

// Name computes the archive's Content-Disposition filename: "<basename>.ext"
// for a single entry, "bundle-<UTC timestamp>.ext" otherwise.
func Name(entries []ArchiveEntry, format Format, now time.Time) string {
	ext := "zip"
	if format == FormatTarGz {
		ext = "tar.gz"
	}
	if len(entries) == 1 {
		base := filepath.Base(strings.TrimSuffix(entries[0].Virtual, "/"))
		return base + "." + ext
	}
	return fmt.Sprintf("bundle-%s.%s", now.UTC().Format("20060102T150405Z"), ext)
}

// Stream writes the archive for entries to w in format. For zip, it first
// runs the byte-sum probe against largeBytes and switches to store mode
// (no compression) if the total reaches the limit (">=", not ">").
func (a *ArchiveStreamer) Stream(ctx context.Context, w io.Writer, entries []ArchiveEntry, format Format) error {
	switch format {
	case FormatZip:
		return a.streamZip(ctx, w, entries)
	case FormatTarGz:
		return a.streamTarGz(ctx, w, entries)
	default:
		return cmn.NewError(cmn.KindInvalidRequest, "archive", string(format), nil)
	}
}

func (a *ArchiveStreamer) streamZip(ctx context.Context, w io.Writer, entries []ArchiveEntry) error {
	hostPaths := make([]string, len(entries))
	for i, e := range entries {
		hostPaths[i] = e.HostPath
	}
	_, hitLimit := a.adapter.SizeProbe(ctx, hostPaths, a.largeBytes)

	zw := zip.NewWriter(w)
	defer zw.Close()

	if !hitLimit {
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return kzip.NewWriter(out, kzip.DefaultCompression)
		})
	}
	method := zip.Deflate
	if hitLimit {
		method = zip.Store
	}

	for _, e := range entries {
		if err := addToZip(zw, e.HostPath, e.Virtual, method); err != nil {
			glog.Errorf("archive: zip entry %s: %v", e.Virtual, err)
			return err
		}
	}
	return zw.Close()
}

func addToZip(zw *zip.Writer, hostPath, arcRoot string, method uint16) error {
	base := filepath.Base(strings.TrimSuffix(arcRoot, "/"))
	return filepath.Walk(hostPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(hostPath, p)
		if err != nil {
			return err
		}
		name := base
		if rel != "." {
			name = filepath.Join(base, rel)
		}
		if info.IsDir() {
			return nil
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(name)
		hdr.Method = method
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(fw, f)
		return err
	})
}

func (a *ArchiveStreamer) streamTarGz(ctx context.Context, w io.Writer, entries []ArchiveEntry) error {
	gw := kgzip.NewWriter(w)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, e := range entries {
		if err := addToTar(tw, e.HostPath, e.Virtual); err != nil {
			glog.Errorf("archive: tar entry %s: %v", e.Virtual, err)
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func addToTar(tw *tar.Writer, hostPath, arcRoot string) error {
	base := filepath.Base(strings.TrimSuffix(arcRoot, "/"))
	return filepath.Walk(hostPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(hostPath, p)
		if err != nil {
			return err
		}
		name := base
		if rel != "." {
			name = filepath.Join(base, rel)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(name)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// ContentDisposition builds the header value carrying both an ASCII
// fallback and a UTF-8 encoded form for non-ASCII filenames.
func ContentDisposition(filename string) string {
	ascii := toASCIIFallback(filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, urlEncode(filename))
}

func toASCIIFallback(name string) string {
	b := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x80 && c != '"' {
			b = append(b, c)
		} else {
			b = append(b, '_')
		}
	}
	return string(b)
}

func urlEncode(name string) string {
	var sb strings.Builder
	for _, r := range []byte(name) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '-' || r == '.' || r == '_' || r == '~' {
			sb.WriteByte(r)
		} else {
			fmt.Fprintf(&sb, "%%%02X", r)
		}
	}
	return sb.String()
}
