package auth_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sesukyothole/filevault/auth"
	"github.com/sesukyothole/filevault/cmn/tassert"
)

func TestLoadRegistryAndScoping(t *testing.T) {
	fileRoot := t.TempDir()
	tassert.CheckFatal(t, os.MkdirAll(filepath.Join(fileRoot, "alice"), 0o755))

	usersDoc, err := json.Marshal([]map[string]any{
		{"username": "alice", "role": "read-write", "rootPath": "/alice", "secret": "pw"},
	})
	tassert.CheckFatal(t, err)
	usersPath := filepath.Join(t.TempDir(), "users.json")
	tassert.CheckFatal(t, os.WriteFile(usersPath, usersDoc, 0o644))

	reg, err := auth.LoadRegistryFromFile(usersPath, fileRoot)
	tassert.CheckFatal(t, err)

	u := reg.Lookup("alice")
	tassert.Fatalf(t, u != nil, "expected alice to be registered")
	tassert.Fatalf(t, u.CanWrite(), "expected read-write role to allow writes")
	tassert.Fatalf(t, !u.IsAdmin(), "expected non-admin role")
	tassert.Fatalf(t, auth.VerifyPassword(u, "pw"), "expected password match")
	tassert.Fatalf(t, !auth.VerifyPassword(u, "wrong"), "expected password mismatch")
}

func TestLoadRegistryRejectsEscapingRoot(t *testing.T) {
	fileRoot := t.TempDir()
	outside := t.TempDir()
	tassert.CheckFatal(t, os.Symlink(outside, filepath.Join(fileRoot, "escape")))

	usersDoc, _ := json.Marshal([]map[string]any{
		{"username": "mallory", "role": "read-only", "rootPath": "/escape", "secret": "pw"},
	})
	usersPath := filepath.Join(t.TempDir(), "users.json")
	tassert.CheckFatal(t, os.WriteFile(usersPath, usersDoc, 0o644))

	_, err := auth.LoadRegistryFromFile(usersPath, fileRoot)
	tassert.Fatalf(t, err != nil, "expected registry load to reject an escaping rootPath")
}

func TestScryptRoundTrip(t *testing.T) {
	salt := []byte("0123456789abcdef")
	encoded, err := auth.HashPassword("correct horse", salt)
	tassert.CheckFatal(t, err)

	u := &auth.User{Secret: encoded}
	tassert.Fatalf(t, auth.VerifyPassword(u, "correct horse"), "expected scrypt match")
	tassert.Fatalf(t, !auth.VerifyPassword(u, "wrong"), "expected scrypt mismatch")
}

func TestLookupDisabledUser(t *testing.T) {
	fileRoot := t.TempDir()
	tassert.CheckFatal(t, os.MkdirAll(filepath.Join(fileRoot, "bob"), 0o755))
	usersDoc, _ := json.Marshal([]map[string]any{
		{"username": "bob", "role": "read-only", "rootPath": "/bob", "secret": "pw", "disabled": true},
	})
	usersPath := filepath.Join(t.TempDir(), "users.json")
	tassert.CheckFatal(t, os.WriteFile(usersPath, usersDoc, 0o644))

	reg, err := auth.LoadRegistryFromFile(usersPath, fileRoot)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, reg.Lookup("bob") == nil, "expected disabled user to be unresolvable")
}
