// Package auth implements the user registry and stateless session tokens:
// SessionAuthority issue/verify/rotate (spec §4.2) and password verification
// (plaintext constant-time compare or scrypt).
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/scrypt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Role enumerates the three authorization tiers.
type Role string

const (
	RoleReadOnly  Role = "read-only"
	RoleReadWrite Role = "read-write"
	RoleAdmin     Role = "admin"
)

// User is an entry in the (immutable, load-once) user registry.
type User struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	RootPath string `json:"rootPath"` // declared virtual root, POSIX, starts with "/"
	RootReal string `json:"-"`        // host realpath, resolved at load time
	Secret   string `json:"secret"`   // plaintext, or "scrypt$<salt>$<hash>"
	Disabled bool   `json:"disabled,omitempty"`
}

// CanWrite reports whether the user's role permits mutating operations.
func (u *User) CanWrite() bool { return u.Role == RoleReadWrite || u.Role == RoleAdmin }

// IsAdmin reports whether the user's role permits admin-only operations
// (S3 config CRUD).
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Registry is the immutable, load-once-at-startup set of users.
type Registry struct {
	byName map[string]*User
}

// LoadRegistryFromFile parses a JSON array of users from path, resolving
// each RootPath under fileRoot and rejecting any user whose root escapes it.
func LoadRegistryFromFile(path, fileRoot string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read users file: %w", err)
	}
	var users []*User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("auth: parse users file: %w", err)
	}
	return buildRegistry(users, fileRoot)
}

// LoadRegistryFromJSON parses a JSON array of users from an inline document
// (the USERS_JSON environment input).
func LoadRegistryFromJSON(doc, fileRoot string) (*Registry, error) {
	var users []*User
	if err := json.Unmarshal([]byte(doc), &users); err != nil {
		return nil, fmt.Errorf("auth: parse USERS_JSON: %w", err)
	}
	return buildRegistry(users, fileRoot)
}

// SingleAdminRegistry builds a one-user fallback registry (ADMIN_PASSWORD)
// rooted at fileRoot itself.
func SingleAdminRegistry(password, fileRoot string) (*Registry, error) {
	root, err := filepath.EvalSymlinks(fileRoot)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve FILE_ROOT: %w", err)
	}
	admin := &User{Username: "admin", Role: RoleAdmin, RootPath: "/", RootReal: root, Secret: password}
	return &Registry{byName: map[string]*User{"admin": admin}}, nil
}

func buildRegistry(users []*User, fileRoot string) (*Registry, error) {
	realFileRoot, err := filepath.EvalSymlinks(fileRoot)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve FILE_ROOT: %w", err)
	}
	byName := make(map[string]*User, len(users))
	for _, u := range users {
		if !strings.HasPrefix(u.RootPath, "/") {
			return nil, fmt.Errorf("auth: user %q: rootPath must start with /", u.Username)
		}
		hostPath := filepath.Join(realFileRoot, filepath.FromSlash(u.RootPath))
		real, err := filepath.EvalSymlinks(hostPath)
		if err != nil {
			return nil, fmt.Errorf("auth: user %q: resolve rootPath: %w", u.Username, err)
		}
		if real != realFileRoot && !strings.HasPrefix(real, realFileRoot+string(os.PathSeparator)) {
			return nil, fmt.Errorf("auth: user %q: rootPath escapes FILE_ROOT", u.Username)
		}
		u.RootReal = real
		byName[u.Username] = u
	}
	return &Registry{byName: byName}, nil
}

// Lookup returns the user by name, or nil if not registered or disabled.
func (r *Registry) Lookup(username string) *User {
	u, ok := r.byName[username]
	if !ok || u.Disabled {
		return nil
	}
	return u
}

// VerifyPassword compares presented against the user's stored secret in
// constant time. If the secret is a "scrypt$<b64 salt>$<b64 hash>" tuple, it
// re-derives with the same parameters; otherwise it does a constant-time
// plaintext compare.
func VerifyPassword(u *User, presented string) bool {
	if strings.HasPrefix(u.Secret, "scrypt$") {
		return verifyScrypt(u.Secret, presented)
	}
	return subtle.ConstantTimeCompare([]byte(u.Secret), []byte(presented)) == 1
}

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

func verifyScrypt(encoded, presented string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "scrypt" {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got, err := scrypt.Key([]byte(presented), salt, scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// HashPassword derives a "scrypt$<salt>$<hash>" secret for seeding the users
// file or an admin bootstrap.
func HashPassword(plaintext string, salt []byte) (string, error) {
	hash, err := scrypt.Key([]byte(plaintext), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scrypt$%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}
