package server

import (
	"net/http"

	"github.com/sesukyothole/filevault/audit"
	"github.com/sesukyothole/filevault/auth"
	"github.com/sesukyothole/filevault/cmn"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin collapses user_not_found/bad_password into one generic
// response while recording the distinguishing reason to the audit log
// (spec §4.2/§7).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ip := clientIP(r)

	user := s.Users.Lookup(req.Username)
	if user == nil {
		s.Audit.Record(audit.Event{IP: ip, Action: "login", User: req.Username, Outcome: "denied", LoginReason: audit.ReasonUserNotFound})
		writeError(w, cmn.NewError(cmn.KindUnauthorized, "login", "", nil))
		return
	}
	if !auth.VerifyPassword(user, req.Password) {
		s.Audit.Record(audit.Event{IP: ip, Action: "login", User: req.Username, Outcome: "denied", LoginReason: audit.ReasonBadPassword})
		writeError(w, cmn.NewError(cmn.KindUnauthorized, "login", "", nil))
		return
	}
	tok, err := s.Sessions.Issue(user.Username)
	if err != nil {
		writeError(w, cmn.NewError(cmn.KindUpstream, "login", "", err))
		return
	}
	s.setSessionCookie(w, tok)
	s.Audit.Record(audit.Event{IP: ip, Action: "login", User: req.Username, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Username, "role": user.Role})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.Connections.Detach(sess.Nonce, "")
	s.clearSessionCookie(w)
	s.Audit.Record(audit.Event{IP: clientIP(r), Action: "logout", User: userFrom(r.Context()).Username, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
