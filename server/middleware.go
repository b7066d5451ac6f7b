package server

import (
	"net/http"
	"time"

	"github.com/sesukyothole/filevault/cmn"
)

const sessionCookieName = "session"

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((8 * time.Hour).Seconds()),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// requireSession verifies the session cookie, attaches the user and
// session to the request context, reissues a rotated cookie in-flight when
// the token is within its rotation window (spec §4.2), and rejects the
// request as Unauthorized otherwise.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeError(w, cmn.NewError(cmn.KindUnauthorized, "session", "", nil))
			return
		}
		sess, err := s.Sessions.Verify(cookie.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		user := s.Users.Lookup(sess.User)
		if user == nil {
			writeError(w, cmn.NewError(cmn.KindUnauthorized, "session", "", nil))
			return
		}
		if newTok, rotated, err := s.Sessions.Rotate(sess); err == nil && rotated {
			s.setSessionCookie(w, newTok)
		}
		next(w, r.WithContext(withUser(r.Context(), user, sess)))
	}
}

// requireWrite rejects the request as Forbidden unless the authenticated
// user's role permits mutation.
func (s *Server) requireWrite(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		if !userFrom(r.Context()).CanWrite() {
			writeError(w, cmn.NewError(cmn.KindForbidden, "write", "", nil))
			return
		}
		next(w, r)
	})
}

// requireAdmin rejects the request as Forbidden unless the authenticated
// user is an admin (S3 config CRUD, spec §6).
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		if !userFrom(r.Context()).IsAdmin() {
			writeError(w, cmn.NewError(cmn.KindForbidden, "admin", "", nil))
			return
		}
		next(w, r)
	})
}
