package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sesukyothole/filevault/cmn"
)

// SessionTTL and SessionRotate are the spec's defaults (8h / 30m).
const (
	SessionTTL    = 8 * time.Hour
	SessionRotate = 30 * time.Minute
)

// Session is the decoded payload of a session token.
type Session struct {
	User  string    `json:"user"`
	Nonce string    `json:"nonce"`
	Exp   int64     `json:"exp"` // unix seconds
	exp   time.Time // derived, not encoded
}

func (s *Session) expiresAt() time.Time { return time.Unix(s.Exp, 0) }

// Authority issues, verifies, and rotates stateless session tokens signed
// with HMAC-SHA256. now is overridable for deterministic tests.
type Authority struct {
	secret []byte
	now    func() time.Time
}

// NewAuthority builds an Authority over the given SESSION_SECRET.
func NewAuthority(secret []byte) *Authority {
	return &Authority{secret: secret, now: time.Now}
}

// NewAuthorityWithClock builds an Authority with an overridable clock, used
// by tests to exercise rotation/expiry deterministically.
func NewAuthorityWithClock(secret []byte, now func() time.Time) *Authority {
	return &Authority{secret: secret, now: now}
}

// Issue builds a fresh token for username: {user, nonce: random UUID,
// exp: now + TTL}, canonically JSON-encoded, base64url-encoded, and signed.
func (a *Authority) Issue(username string) (string, error) {
	return a.issueWithExp(username, a.now().Add(SessionTTL))
}

func (a *Authority) issueWithExp(username string, exp time.Time) (string, error) {
	payload := Session{User: username, Nonce: uuid.New().String(), Exp: exp.Unix()}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("auth: encode session: %w", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(body)
	sig := a.sign(encodedPayload)
	return encodedPayload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (a *Authority) sign(encodedPayload string) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(encodedPayload))
	return mac.Sum(nil)
}

// Verify splits token on ".", recomputes the HMAC, compares it in constant
// time, decodes the payload, and rejects it unless exp is in the future and
// every field has its expected type. Any structural anomaly fails silently
// as Unauthorized — the spec requires no distinguishing detail leak here.
func (a *Authority) Verify(token string) (*Session, error) {
	dot := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return nil, cmn.NewError(cmn.KindUnauthorized, "verify", "", nil)
	}
	encodedPayload, encodedSig := token[:dot], token[dot+1:]

	wantSig := a.sign(encodedPayload)
	gotSig, err := base64.RawURLEncoding.Strict().DecodeString(encodedSig)
	if err != nil || subtle.ConstantTimeCompare(wantSig, gotSig) != 1 {
		return nil, cmn.NewError(cmn.KindUnauthorized, "verify", "", nil)
	}

	body, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, cmn.NewError(cmn.KindUnauthorized, "verify", "", nil)
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, cmn.NewError(cmn.KindUnauthorized, "verify", "", nil)
	}
	if s.User == "" || s.Nonce == "" || s.Exp == 0 {
		return nil, cmn.NewError(cmn.KindUnauthorized, "verify", "", nil)
	}
	s.exp = s.expiresAt()
	if !a.now().Before(s.exp) {
		return nil, cmn.NewError(cmn.KindUnauthorized, "verify", "", nil)
	}
	return &s, nil
}

// ShouldRotate reports whether the remaining lifetime of s is at or below
// SessionRotate.
func (a *Authority) ShouldRotate(s *Session) bool {
	return s.expiresAt().Sub(a.now()) <= SessionRotate
}

// Rotate issues a fresh token for the same user if ShouldRotate(s); callers
// attach the result as a new cookie while the old token remains valid until
// its natural expiry. The nonce carries over unchanged — a "session" for
// the purposes of the S3 connection registry is identified by its nonce,
// not its token, so rotation must not orphan live bindings.
func (a *Authority) Rotate(s *Session) (string, bool, error) {
	if !a.ShouldRotate(s) {
		return "", false, nil
	}
	payload := Session{User: s.User, Nonce: s.Nonce, Exp: a.now().Add(SessionTTL).Unix()}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("auth: encode session: %w", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(body)
	sig := a.sign(encodedPayload)
	return encodedPayload + "." + base64.RawURLEncoding.EncodeToString(sig), true, nil
}
