package server

import (
	"net/http"

	"github.com/sesukyothole/filevault/cloud"
	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/storage"
)

func (s *Server) resolveS3Adapter(r *http.Request, configID string) (*cloud.S3Adapter, error) {
	sess := sessionFrom(r.Context())
	adapter, ok := s.Connections.Resolve(sess.Nonce, configID)
	if !ok {
		return nil, cmn.NewError(cmn.KindForbidden, "s3", configID, nil)
	}
	return adapter, nil
}

// --- S3 config CRUD (admin-only, spec §6) ---

func (s *Server) handleS3ConfigsList(w http.ResponseWriter, r *http.Request) {
	list, err := s.Configs.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": list})
}

func (s *Server) handleS3ConfigCreate(w http.ResponseWriter, r *http.Request) {
	var profile cloud.S3ConfigProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.Configs.Create(profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created.Redacted())
}

func (s *Server) handleS3ConfigUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var profile cloud.S3ConfigProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.Configs.Update(id, profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Redacted())
}

func (s *Server) handleS3ConfigDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Configs.Delete(id, s.Connections.OnProfileDeleted); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleS3ConfigTest is the listObjects probe confirming a profile's
// credentials/bucket/prefix are reachable, without binding a live
// connection.
func (s *Server) handleS3ConfigTest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	profile, err := s.Configs.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if profile == nil {
		writeError(w, cmn.NewError(cmn.KindNotFound, "s3.test", id, nil))
		return
	}
	adapter, err := cloud.NewS3Adapter(profile)
	if err != nil {
		writeError(w, cmn.NewError(cmn.KindUpstream, "s3.test", id, err))
		return
	}
	if _, err := adapter.List(r.Context(), "/", storage.ListOptions{Limit: 1}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- S3 session binding (spec §6 "S3 session") ---

func (s *Server) handleS3Connect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"configId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	profile, err := s.Configs.Get(req.ConfigID)
	if err != nil {
		writeError(w, err)
		return
	}
	if profile == nil {
		writeError(w, cmn.NewError(cmn.KindNotFound, "s3.connect", req.ConfigID, nil))
		return
	}
	sess := sessionFrom(r.Context())
	err = s.Connections.Attach(sess.Nonce, req.ConfigID, func() (*cloud.S3Adapter, error) {
		return cloud.NewS3Adapter(profile)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleS3Disconnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"configId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess := sessionFrom(r.Context())
	s.Connections.Detach(sess.Nonce, req.ConfigID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleS3Connections(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	conns := s.Connections.ListForSession(sess.Nonce)
	writeJSON(w, http.StatusOK, map[string]any{"connected": conns.Connected, "maxConnections": conns.MaxConnections})
}

// --- S3 file ops: identical shape to the local operations, namespaced
// under s3/* and requiring a configId (spec §6) ---

func (s *Server) handleS3List(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.resolveS3Adapter(r, r.URL.Query().Get("configId"))
	if err != nil {
		writeError(w, err)
		return
	}
	opList(w, r, adapter, userFrom(r.Context()))
}

func (s *Server) handleS3Download(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.resolveS3Adapter(r, r.URL.Query().Get("configId"))
	if err != nil {
		writeError(w, err)
		return
	}
	opDownload(w, r, adapter, r.URL.Query().Get("path"))
}

func (s *Server) handleS3Upload(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.resolveS3Adapter(r, r.FormValue("configId"))
	if err != nil {
		writeError(w, err)
		return
	}
	opUpload(w, r, adapter, s.Audit, clientIP(r), "s3.upload")
}

func (s *Server) handleS3Mkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"configId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	adapter, err := s.resolveS3Adapter(r, req.ConfigID)
	if err != nil {
		writeError(w, err)
		return
	}
	opMkdir(w, r, adapter, s.Audit, clientIP(r), "s3.mkdir")
}

func (s *Server) handleS3Move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"configId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	adapter, err := s.resolveS3Adapter(r, req.ConfigID)
	if err != nil {
		writeError(w, err)
		return
	}
	opMove(w, r, adapter, s.Audit, clientIP(r), "s3.move")
}

func (s *Server) handleS3Copy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"configId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	adapter, err := s.resolveS3Adapter(r, req.ConfigID)
	if err != nil {
		writeError(w, err)
		return
	}
	opCopy(w, r, adapter, s.Audit, clientIP(r), "s3.copy")
}

func (s *Server) handleS3Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"configId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	adapter, err := s.resolveS3Adapter(r, req.ConfigID)
	if err != nil {
		writeError(w, err)
		return
	}
	opDelete(w, r, adapter, s.Audit, clientIP(r), "s3.delete")
}

func (s *Server) handleS3Search(w http.ResponseWriter, r *http.Request) {
	adapter, err := s.resolveS3Adapter(r, r.URL.Query().Get("configId"))
	if err != nil {
		writeError(w, err)
		return
	}
	opSearch(w, r, adapter, s.SearchMaxBytes)
}
