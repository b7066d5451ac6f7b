package storage_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sesukyothole/filevault/cmn/tassert"
	"github.com/sesukyothole/filevault/storage"
)

func TestArchiveZipUsesDeflateBelowLimit(t *testing.T) {
	a, root := newRoot(t)
	ctx := context.Background()
	tassert.CheckFatal(t, a.Write(ctx, "/small.txt", bytes.Repeat([]byte("a"), 100)))

	streamer := storage.NewArchiveStreamer(a, 1<<20)
	var buf bytes.Buffer
	entries := []storage.ArchiveEntry{{HostPath: filepath.Join(root, "small.txt"), Virtual: "/small.txt"}}
	tassert.CheckFatal(t, streamer.Stream(ctx, &buf, entries, storage.FormatZip))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(zr.File) == 1, "expected one zip entry")
	tassert.Fatalf(t, zr.File[0].Method == zip.Deflate, "expected deflate below the limit, got %d", zr.File[0].Method)
}

func TestArchiveZipUsesStoreAtLimit(t *testing.T) {
	a, root := newRoot(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("a"), 1024)
	tassert.CheckFatal(t, a.Write(ctx, "/big.txt", payload))

	// limit == payload size: the ">=" boundary must trip store mode.
	streamer := storage.NewArchiveStreamer(a, int64(len(payload)))
	var buf bytes.Buffer
	entries := []storage.ArchiveEntry{{HostPath: filepath.Join(root, "big.txt"), Virtual: "/big.txt"}}
	tassert.CheckFatal(t, streamer.Stream(ctx, &buf, entries, storage.FormatZip))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, zr.File[0].Method == zip.Store, "expected store at the limit, got %d", zr.File[0].Method)
}

func TestArchiveZipCountsFilesPastSymlinkSibling(t *testing.T) {
	a, root := newRoot(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("a"), 1024)
	tassert.CheckFatal(t, a.Write(ctx, "/dir/a-link-target.txt", []byte("x")))
	tassert.CheckFatal(t, os.Symlink(filepath.Join(root, "dir", "a-link-target.txt"), filepath.Join(root, "dir", "a-link")))
	tassert.CheckFatal(t, a.Write(ctx, "/dir/z-big.txt", payload))

	// The symlink sorts before z-big.txt in an unsorted walk; if SizeProbe
	// mistakenly skipped the rest of the directory on the symlink dirent,
	// z-big.txt's size would never be counted and the limit would be missed.
	streamer := storage.NewArchiveStreamer(a, int64(len(payload)))
	var buf bytes.Buffer
	entries := []storage.ArchiveEntry{{HostPath: filepath.Join(root, "dir"), Virtual: "/dir"}}
	tassert.CheckFatal(t, streamer.Stream(ctx, &buf, entries, storage.FormatZip))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	tassert.CheckFatal(t, err)
	for _, f := range zr.File {
		if filepath.Base(f.Name) == "z-big.txt" {
			tassert.Fatalf(t, f.Method == zip.Store, "expected store once z-big.txt's size is counted past the symlink sibling, got %d", f.Method)
			return
		}
	}
	tassert.Fatalf(t, false, "expected z-big.txt in the archive")
}

func TestArchiveName(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	single := storage.Name([]storage.ArchiveEntry{{Virtual: "/dir/report.txt"}}, storage.FormatZip, now)
	tassert.Fatalf(t, single == "report.txt.zip", "got %q", single)

	multi := storage.Name([]storage.ArchiveEntry{{Virtual: "/a"}, {Virtual: "/b"}}, storage.FormatTarGz, now)
	tassert.Fatalf(t, multi == "bundle-20260102T030405Z.tar.gz", "got %q", multi)
}

func TestContentDispositionUTF8(t *testing.T) {
	header := storage.ContentDisposition("résumé.txt")
	tassert.Fatalf(t, header != "", "expected non-empty header")
	tassert.Fatalf(t, bytes.Contains([]byte(header), []byte("filename*=UTF-8''")), "expected UTF-8 form, got %q", header)
}
