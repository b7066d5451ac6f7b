package cmn_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/cmn/tassert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/a/b", "/a/b"},
		{"a/b", "/a/b"},
		{`a\b`, "/a/b"},
		{"/a/../b", "/b"},
		{"/a//b///c", "/a/b/c"},
		{"  /a  ", "/a"},
		{"/", "/"},
	}
	for _, c := range cases {
		got, err := cmn.Normalize(c.in)
		tassert.CheckFatal(t, err)
		tassert.Fatalf(t, got == c.want, "Normalize(%q) = %q, want %q", c.in, got, c.want)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := cmn.Normalize("   ")
	tassert.Fatalf(t, err != nil, "expected error for empty input")
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindInvalidPath, "expected InvalidPath, got %v", cmn.KindOf(err))
}

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	real, err := filepath.EvalSymlinks(root)
	tassert.CheckFatal(t, err)
	return real
}

func TestResolveSafeRoot(t *testing.T) {
	root := setupRoot(t)
	r, err := cmn.ResolveSafe("/", root)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, r.HostPath == root, "expected root, got %q", r.HostPath)
}

func TestResolveSafeTraversalBlocked(t *testing.T) {
	root := setupRoot(t)
	_, err := cmn.ResolveSafe("/../../etc", root)
	// Normalize collapses the leading ".." segments to "/etc", so the lookup
	// lands on <root>/etc, which does not exist (NotFound) — it must never
	// resolve to something outside root without failing.
	tassert.Fatalf(t, err != nil, "expected traversal attempt to fail")
}

func TestResolveSafeTrashRejected(t *testing.T) {
	root := setupRoot(t)
	os.MkdirAll(filepath.Join(root, ".trash"), 0o755)
	_, err := cmn.ResolveSafe("/.trash", root)
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindInvalidPath, "expected InvalidPath for /.trash, got %v", err)
	_, err = cmn.ResolveSafe("/.trash/foo", root)
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindInvalidPath, "expected InvalidPath for /.trash/foo, got %v", err)
}

func TestResolveSafeEscapeViaSymlink(t *testing.T) {
	root := setupRoot(t)
	outside := t.TempDir()
	tassert.CheckFatal(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))
	tassert.CheckFatal(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := cmn.ResolveSafe("/link", root)
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindEscape, "expected Escape, got %v", err)
}

func TestResolveSafePrefixConfusion(t *testing.T) {
	// root = /tmp/.../foo ; a sibling "foobar" must never pass containment.
	parent := t.TempDir()
	root := filepath.Join(parent, "foo")
	sibling := filepath.Join(parent, "foobar")
	tassert.CheckFatal(t, os.MkdirAll(root, 0o755))
	tassert.CheckFatal(t, os.MkdirAll(sibling, 0o755))
	tassert.CheckFatal(t, os.WriteFile(filepath.Join(sibling, "x.txt"), []byte("x"), 0o644))

	realRoot, err := filepath.EvalSymlinks(root)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, os.Symlink(sibling, filepath.Join(root, "escape")))

	_, err = cmn.ResolveSafe("/escape", realRoot)
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindEscape, "expected Escape, got %v", err)
}

func TestResolveDestination(t *testing.T) {
	root := setupRoot(t)
	r, err := cmn.ResolveDestination("/new-file.txt", root)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, r.HostPath == filepath.Join(root, "new-file.txt"), "got %q", r.HostPath)
}

func TestResolveDestinationRootAndTrash(t *testing.T) {
	root := setupRoot(t)
	r, err := cmn.ResolveDestination("/", root)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, r == nil, "expected nil for root destination")

	r, err = cmn.ResolveDestination("/.trash/x", root)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, r == nil, "expected nil for /.trash destination")
}

func TestResolveDestinationParentMissing(t *testing.T) {
	root := setupRoot(t)
	_, err := cmn.ResolveDestination("/no/such/dir/file.txt", root)
	tassert.Fatalf(t, err != nil, "expected error for missing parent")
}
