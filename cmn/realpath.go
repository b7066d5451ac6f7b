package cmn

import "path/filepath"

// realpath resolves every symbolic link in p and returns the absolute,
// cleaned host path. It fails exactly as os.Lstat/filepath.EvalSymlinks
// fail — in particular with a not-exist error when the entry is absent,
// which ResolveSafe maps to NotFound.
func realpath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
