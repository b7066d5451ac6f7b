package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"

	"github.com/sesukyothole/filevault/cmn"
)

// TrashSubdir and TrashMetaSubdir are the physical layout under rootReal
// backing trash bookkeeping (spec §3/§4.4.4).
const (
	TrashSubdir     = ".trash"
	TrashMetaSubdir = ".trash/.meta"
)

// LocalAdapter implements Adapter over a sandboxed subtree of the host
// filesystem, rooted at RootReal (symlink-resolved, within FILE_ROOT).
type LocalAdapter struct {
	RootReal string

	mu sync.Mutex // serializes trash-sidecar writes for this root
}

// NewLocalAdapter builds a LocalAdapter rooted at rootReal, which must
// already be a symlink-resolved absolute host path.
func NewLocalAdapter(rootReal string) *LocalAdapter {
	return &LocalAdapter{RootReal: rootReal}
}

var _ Adapter = (*LocalAdapter)(nil)

func (l *LocalAdapter) resolveSafe(virtualPath string) (*cmn.Resolved, error) {
	return cmn.ResolveSafe(virtualPath, l.RootReal)
}

func (l *LocalAdapter) resolveDestination(virtualPath string) (*cmn.Resolved, error) {
	return cmn.ResolveDestination(virtualPath, l.RootReal)
}

// List reads the directory, stats each non-symlink child, skips /.trash at
// the root, sorts directories-first/case-insensitive, and paginates.
func (l *LocalAdapter) List(ctx context.Context, path string, opts ListOptions) (*ListResult, error) {
	r, err := l.resolveSafe(path)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(r.HostPath)
	if err != nil {
		return nil, cmn.NewError(cmn.KindUpstream, "list", r.Normalized, err)
	}
	entries := make([]Entry, 0, len(dirents))
	isRoot := r.HostPath == l.RootReal
	for _, de := range dirents {
		if isRoot && de.Name() == TrashSubdir {
			continue
		}
		info, err := os.Lstat(filepath.Join(r.HostPath, de.Name()))
		if err != nil {
			continue // vanished between ReadDir and Lstat; skip
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue // symlinks are never traversed or listed
		}
		entries = append(entries, entryFromInfo(de.Name(), info))
	}
	SortEntries(entries)
	total := len(entries)
	return &ListResult{Entries: Paginate(entries, opts), Total: total}, nil
}

func entryFromInfo(name string, info os.FileInfo) Entry {
	typ := TypeFile
	var size int64
	if info.IsDir() {
		typ = TypeDir
	} else {
		size = info.Size()
	}
	return Entry{Name: name, Type: typ, Size: size, Mtime: info.ModTime().UnixMilli()}
}

// Stat returns the entry at path, or (nil, nil) if it does not exist.
func (l *LocalAdapter) Stat(ctx context.Context, path string) (*Entry, error) {
	r, err := l.resolveSafe(path)
	if err != nil {
		if cmn.KindOf(err) == cmn.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	info, err := os.Lstat(r.HostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cmn.NewError(cmn.KindUpstream, "stat", r.Normalized, err)
	}
	name := filepath.Base(r.HostPath)
	e := entryFromInfo(name, info)
	return &e, nil
}

// Read returns the full content of the file at path.
func (l *LocalAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	r, err := l.resolveSafe(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.HostPath)
	if err != nil {
		return nil, cmn.NewError(cmn.KindUpstream, "read", r.Normalized, err)
	}
	return data, nil
}

// Write overwrites (or creates) the file at path, creating parent
// directories as needed — refusing to traverse any symlinked intermediate
// component, per the sandbox invariant.
func (l *LocalAdapter) Write(ctx context.Context, path string, data []byte) error {
	hostPath, normalized, err := l.resolveForWrite(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(hostPath, data, 0o644); err != nil {
		return cmn.NewError(cmn.KindUpstream, "write", normalized, err)
	}
	return nil
}

// resolveForWrite walks the normalized path's segments from RootReal,
// creating any missing intermediate directory (refusing to step through an
// existing symlink), then returns the final leaf host path.
func (l *LocalAdapter) resolveForWrite(virtualPath string) (hostPath, normalized string, err error) {
	normalized, err = cmn.Normalize(virtualPath)
	if err != nil {
		return "", "", err
	}
	if normalized == "/" || strings.HasPrefix(normalized, cmn.TrashDirName) {
		return "", normalized, cmn.NewError(cmn.KindInvalidPath, "write", normalized, nil)
	}
	segments := strings.Split(strings.Trim(normalized, "/"), "/")
	leaf := segments[len(segments)-1]
	if leaf == "" || leaf == "." || leaf == ".." || strings.ContainsAny(leaf, "\x00") {
		return "", normalized, cmn.NewError(cmn.KindInvalidPath, "write", normalized, nil)
	}
	current := l.RootReal
	for _, seg := range segments[:len(segments)-1] {
		candidate := filepath.Join(current, seg)
		info, statErr := os.Lstat(candidate)
		switch {
		case os.IsNotExist(statErr):
			if err := os.Mkdir(candidate, 0o755); err != nil {
				return "", normalized, cmn.NewError(cmn.KindUpstream, "write", normalized, err)
			}
		case statErr != nil:
			return "", normalized, cmn.NewError(cmn.KindUpstream, "write", normalized, statErr)
		case info.Mode()&os.ModeSymlink != 0:
			return "", normalized, cmn.NewError(cmn.KindEscape, "write", normalized, nil)
		case !info.IsDir():
			return "", normalized, cmn.NewError(cmn.KindConflict, "write", normalized, nil)
		}
		current = candidate
	}
	return filepath.Join(current, leaf), normalized, nil
}

// Delete is the local backend's "soft delete": it moves the entry to trash
// (spec §4.4.4) rather than unlinking it. The local backend has no
// hard-delete operation.
func (l *LocalAdapter) Delete(ctx context.Context, path string) error {
	_, err := l.MoveToTrash(ctx, path)
	return err
}

// MoveToTrash implements the soft-delete: renames the host node to
// <rootReal>/.trash/<trashName> and writes the sidecar metadata. Source must
// not be the root and must not already be inside /.trash.
func (l *LocalAdapter) MoveToTrash(ctx context.Context, path string) (*TrashRecord, error) {
	r, err := l.resolveSafe(path)
	if err != nil {
		return nil, err
	}
	if r.Normalized == "/" {
		return nil, cmn.NewError(cmn.KindInvalidPath, "trash", r.Normalized, nil)
	}
	info, err := os.Lstat(r.HostPath)
	if err != nil {
		return nil, cmn.NewError(cmn.KindNotFound, "trash", r.Normalized, err)
	}

	id := newRecordID()
	now := time.Now()
	name := filepath.Base(r.HostPath)
	typ := TypeFile
	var size int64
	if info.IsDir() {
		typ = TypeDir
	} else {
		size = info.Size()
	}
	trashName := fmt.Sprintf("%d-%s-%s", now.UnixMilli(), sanitizeForTrashName(name), id)

	l.mu.Lock()
	defer l.mu.Unlock()

	trashDir := filepath.Join(l.RootReal, TrashSubdir)
	metaDir := filepath.Join(l.RootReal, TrashMetaSubdir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, cmn.NewError(cmn.KindUpstream, "trash", r.Normalized, err)
	}

	rec := &TrashRecord{
		ID:           id,
		Name:         name,
		OriginalPath: r.Normalized,
		DeletedAt:    now.UnixMilli(),
		Type:         typ,
		Size:         size,
		TrashName:    trashName,
	}

	// Write the sidecar before the rename: if the process dies in between,
	// the startup reconciliation pass (TrashStore.Reconcile) deletes the orphan
	// sidecar since its trashName target never landed.
	if err := writeSidecar(metaDir, rec); err != nil {
		return nil, err
	}
	trashHostPath := filepath.Join(trashDir, trashName)
	if err := os.Rename(r.HostPath, trashHostPath); err != nil {
		os.Remove(sidecarPath(metaDir, id))
		return nil, cmn.NewError(cmn.KindUpstream, "trash", r.Normalized, err)
	}
	return rec, nil
}

// Restore reconstructs the virtual original path of rec, re-resolves its
// parent (must still exist), checks the destination leaf is free, and
// renames the trash item back.
func (l *LocalAdapter) Restore(ctx context.Context, rec *TrashRecord) error {
	dest, err := l.resolveDestination(rec.OriginalPath)
	if err != nil {
		if cmn.KindOf(err) == cmn.KindNotFound {
			return cmn.NewError(cmn.KindParentMissing, "restore", rec.OriginalPath, err)
		}
		return err
	}
	if dest == nil {
		return cmn.NewError(cmn.KindInvalidPath, "restore", rec.OriginalPath, nil)
	}
	if _, err := os.Lstat(dest.HostPath); err == nil {
		return cmn.NewError(cmn.KindConflict, "restore", rec.OriginalPath, nil)
	}
	trashHostPath := filepath.Join(l.RootReal, TrashSubdir, rec.TrashName)
	if err := os.Rename(trashHostPath, dest.HostPath); err != nil {
		return cmn.NewError(cmn.KindUpstream, "restore", rec.OriginalPath, err)
	}
	return nil
}

// Move renames source to dest, refusing a destination that already exists
// or that is the source itself or a descendant of it.
func (l *LocalAdapter) Move(ctx context.Context, source, dest string) error {
	srcR, err := l.resolveSafe(source)
	if err != nil {
		return err
	}
	destR, err := l.resolveDestination(dest)
	if err != nil {
		return err
	}
	if destR == nil {
		return cmn.NewError(cmn.KindInvalidPath, "move", dest, nil)
	}
	if err := guardMoveInto(srcR.HostPath, destR.HostPath); err != nil {
		return err
	}
	if _, err := os.Lstat(destR.HostPath); err == nil {
		return cmn.NewError(cmn.KindConflict, "move", destR.Normalized, nil)
	}
	if err := os.Rename(srcR.HostPath, destR.HostPath); err != nil {
		return cmn.NewError(cmn.KindUpstream, "move", destR.Normalized, err)
	}
	return nil
}

func guardMoveInto(srcHost, destHost string) error {
	if destHost == srcHost {
		return cmn.NewError(cmn.KindIntoItself, "move", destHost, nil)
	}
	if strings.HasPrefix(destHost, srcHost+string(os.PathSeparator)) {
		return cmn.NewError(cmn.KindIntoItself, "move", destHost, nil)
	}
	return nil
}

// Copy recursively copies source to dest, skipping symlinks inside the
// source tree.
func (l *LocalAdapter) Copy(ctx context.Context, source, dest string) error {
	srcR, err := l.resolveSafe(source)
	if err != nil {
		return err
	}
	destR, err := l.resolveDestination(dest)
	if err != nil {
		return err
	}
	if destR == nil {
		return cmn.NewError(cmn.KindInvalidPath, "copy", dest, nil)
	}
	if err := guardMoveInto(srcR.HostPath, destR.HostPath); err != nil {
		return err
	}
	if _, err := os.Lstat(destR.HostPath); err == nil {
		return cmn.NewError(cmn.KindConflict, "copy", destR.Normalized, nil)
	}
	info, err := os.Lstat(srcR.HostPath)
	if err != nil {
		return cmn.NewError(cmn.KindNotFound, "copy", srcR.Normalized, err)
	}
	if !info.IsDir() {
		return copyFile(srcR.HostPath, destR.HostPath, info.Mode())
	}
	return copyTree(ctx, srcR.HostPath, destR.HostPath)
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return cmn.NewError(cmn.KindUpstream, "copy", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return cmn.NewError(cmn.KindUpstream, "copy", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return cmn.NewError(cmn.KindUpstream, "copy", dest, err)
	}
	return nil
}

// copyTree walks src with godirwalk (grounded on fs/walk.go), fanning
// regular-file copies out across an errgroup while directories are created
// inline as they're discovered; symlinked dirents are skipped silently.
func copyTree(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return cmn.NewError(cmn.KindUpstream, "copy", dest, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	err := godirwalk.Walk(src, &godirwalk.Options{
		Unsorted: true,
		Callback: func(fqn string, de *godirwalk.Dirent) error {
			if fqn == src {
				return nil
			}
			rel, err := filepath.Rel(src, fqn)
			if err != nil {
				return err
			}
			target := filepath.Join(dest, rel)
			if de.IsSymlink() {
				return nil
			}
			if de.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				info, err := os.Lstat(fqn)
				if err != nil {
					return err
				}
				return copyFile(fqn, target, info.Mode())
			})
			return nil
		},
	})
	if err != nil {
		return cmn.NewError(cmn.KindUpstream, "copy", dest, err)
	}
	return g.Wait()
}

// Mkdir is idempotent: it succeeds silently if path already resolves to a
// directory.
func (l *LocalAdapter) Mkdir(ctx context.Context, path string) error {
	hostPath, normalized, err := l.resolveForWrite(path)
	if err != nil {
		return err
	}
	if info, err := os.Lstat(hostPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return cmn.NewError(cmn.KindConflict, "mkdir", normalized, nil)
	}
	if err := os.Mkdir(hostPath, 0o755); err != nil {
		return cmn.NewError(cmn.KindUpstream, "mkdir", normalized, err)
	}
	return nil
}

// Exists reports whether path resolves to a live host entry.
func (l *LocalAdapter) Exists(ctx context.Context, path string) (bool, error) {
	e, err := l.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// SizeProbe accumulates the recursive size of hostPaths up to limit bytes,
// short-circuiting once the limit is reached — the archive pre-flight helper
// (spec §4.4.5).
func (l *LocalAdapter) SizeProbe(ctx context.Context, hostPaths []string, limit int64) (total int64, hitLimit bool) {
	for _, p := range hostPaths {
		info, err := os.Lstat(p)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if !info.IsDir() {
			total += info.Size()
			if total >= limit {
				return total, true
			}
			continue
		}
		err = godirwalk.Walk(p, &godirwalk.Options{
			Unsorted: true,
			Callback: func(fqn string, de *godirwalk.Dirent) error {
				if de.IsSymlink() {
					return nil
				}
				if de.IsDir() {
					return nil
				}
				fi, err := os.Lstat(fqn)
				if err != nil {
					return nil
				}
				total += fi.Size()
				if total >= limit {
					return errProbeLimitHit
				}
				return nil
			},
		})
		if err == errProbeLimitHit {
			return total, true
		}
	}
	return total, false
}

var errProbeLimitHit = fmt.Errorf("size probe limit reached")

func sanitizeForTrashName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\x00", "_")
	return replacer.Replace(name)
}
