package cmn

import (
	"os"
	"path"
	"strings"
)

// TrashDirName is the reserved top-level virtual directory backing the
// LocalAdapter's trash; resolveSafe and resolveDestination both refuse any
// path equal to or nested under it.
const TrashDirName = "/.trash"

// Normalize rewrites backslashes to slashes, prepends a leading slash if
// missing, and collapses ".", "..", and duplicate separators the way
// path.Clean does. An empty input (after trimming) fails with InvalidPath.
func Normalize(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", NewError(KindInvalidPath, "normalize", input, nil)
	}
	rewritten := strings.ReplaceAll(trimmed, "\\", "/")
	if !strings.HasPrefix(rewritten, "/") {
		rewritten = "/" + rewritten
	}
	cleaned := path.Clean(rewritten)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/"
	}
	return cleaned, nil
}

// isTrashPath reports whether a normalized virtual path is /.trash or
// anything nested under it.
func isTrashPath(normalized string) bool {
	return normalized == TrashDirName || strings.HasPrefix(normalized, TrashDirName+"/")
}

// Resolved is the result of resolving a virtual path against a caller's
// scoped root.
type Resolved struct {
	Normalized string // virtual, POSIX, always starts with "/"
	HostPath   string // host-native, symlink-resolved, rooted at rootReal
}

// ResolveSafe normalizes virtualPath, rejects /.trash* targets, joins it
// with rootReal, and takes the host realpath. It fails with NotFound if the
// host entry does not exist, and with Escape if the realpath is not rootReal
// itself and does not start with rootReal+separator — the separator suffix
// check is mandatory so that "/data/foobar" never satisfies a containment
// check against root "/data/foo".
func ResolveSafe(virtualPath, rootReal string) (*Resolved, error) {
	normalized, err := Normalize(virtualPath)
	if err != nil {
		return nil, err
	}
	if isTrashPath(normalized) {
		return nil, NewError(KindInvalidPath, "resolveSafe", normalized, nil)
	}
	joined := path.Join(rootReal, normalized)
	real, err := realpath(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewError(KindNotFound, "resolveSafe", normalized, err)
		}
		return nil, NewError(KindUpstream, "resolveSafe", normalized, err)
	}
	if !withinRoot(real, rootReal) {
		return nil, NewError(KindEscape, "resolveSafe", normalized, nil)
	}
	return &Resolved{Normalized: normalized, HostPath: real}, nil
}

// ResolveDestination resolves a virtualPath that MAY NOT YET exist: the
// parent must resolve (via ResolveSafe) and the leaf must be a legal,
// non-empty, slash-free, non-dot, NUL-free name. It returns nil (no error)
// for the root path or any /.trash* path — callers treat that as "not a
// legal destination" without it being a hard failure kind on its own,
// matching spec §4.1.
func ResolveDestination(virtualPath, rootReal string) (*Resolved, error) {
	normalized, err := Normalize(virtualPath)
	if err != nil {
		return nil, err
	}
	if normalized == "/" || isTrashPath(normalized) {
		return nil, nil
	}
	parent := path.Dir(normalized)
	leaf := path.Base(normalized)
	if err := validateLeaf(leaf); err != nil {
		return nil, err
	}
	parentResolved, err := ResolveSafe(parent, rootReal)
	if err != nil {
		return nil, err
	}
	hostPath := path.Join(parentResolved.HostPath, leaf)
	return &Resolved{Normalized: normalized, HostPath: hostPath}, nil
}

func validateLeaf(leaf string) error {
	if leaf == "" || leaf == "." || leaf == ".." {
		return NewError(KindInvalidPath, "validateLeaf", leaf, nil)
	}
	if strings.ContainsAny(leaf, "/\x00") {
		return NewError(KindInvalidPath, "validateLeaf", leaf, nil)
	}
	return nil
}

// withinRoot reports whether real is rootReal itself, or is nested under it
// with the host path separator — preventing "/data/foobar" from satisfying
// a containment check against root "/data/foo".
func withinRoot(real, rootReal string) bool {
	if real == rootReal {
		return true
	}
	sep := string(os.PathSeparator)
	prefix := strings.TrimSuffix(rootReal, sep) + sep
	return strings.HasPrefix(real, prefix)
}
