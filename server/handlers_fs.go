package server

import (
	"net/http"
	"time"

	"github.com/sesukyothole/filevault/audit"
	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/storage"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opList(w, r, s.localAdapter(user.RootReal), user)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opDownload(w, r, s.localAdapter(user.RootReal), r.URL.Query().Get("path"))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user := userFrom(r.Context())
	opPreview(w, r, s.localAdapter(user.RootReal), s.Policy, req.Path)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opImage(w, r, s.localAdapter(user.RootReal), s.Policy, r.URL.Query().Get("path"))
}

func (s *Server) handleEditRead(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opEditRead(w, r, s.localAdapter(user.RootReal), s.Policy, r.URL.Query().Get("path"))
}

func (s *Server) handleEditWrite(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opEditWrite(w, r, s.localAdapter(user.RootReal), s.Policy, s.Audit, clientIP(r), "edit")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opUpload(w, r, s.localAdapter(user.RootReal), s.Audit, clientIP(r), "upload")
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opMkdir(w, r, s.localAdapter(user.RootReal), s.Audit, clientIP(r), "mkdir")
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opMove(w, r, s.localAdapter(user.RootReal), s.Audit, clientIP(r), "move")
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opCopy(w, r, s.localAdapter(user.RootReal), s.Audit, clientIP(r), "copy")
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opDelete(w, r, s.localAdapter(user.RootReal), s.Audit, clientIP(r), "trash")
}

func (s *Server) handleTrashList(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	store := storage.NewTrashStore(s.localAdapter(user.RootReal))
	records, err := store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (s *Server) handleTrashRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user := userFrom(r.Context())
	store := storage.NewTrashStore(s.localAdapter(user.RootReal))
	if err := store.Consume(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	s.Audit.Record(audit.Event{IP: clientIP(r), Action: "trash.restore", Path: req.ID, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	adapter := s.localAdapter(user.RootReal)
	format := storage.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = storage.FormatZip
	}
	paths := r.URL.Query()["path"]
	if len(paths) == 0 {
		writeError(w, cmn.NewError(cmn.KindInvalidRequest, "archive", "", nil))
		return
	}
	entries := make([]storage.ArchiveEntry, 0, len(paths))
	for _, p := range paths {
		resolved, err := cmn.ResolveSafe(p, adapter.RootReal)
		if err != nil {
			writeError(w, err)
			return
		}
		entries = append(entries, storage.ArchiveEntry{HostPath: resolved.HostPath, Virtual: resolved.Normalized})
	}
	streamer := storage.NewArchiveStreamer(adapter, s.ArchiveLargeBytes)
	ext := "zip"
	if format == storage.FormatTarGz {
		ext = "gzip"
	}
	w.Header().Set("Content-Disposition", storage.ContentDisposition(storage.Name(entries, format, time.Now())))
	w.Header().Set("Content-Type", "application/"+ext)
	w.WriteHeader(http.StatusOK)
	if err := streamer.Stream(r.Context(), w, entries, format); err != nil {
		// headers are already flushed; nothing more to do but log via the
		// standard error path of the caller observing a truncated stream.
		return
	}
	s.Audit.Record(audit.Event{IP: clientIP(r), Action: "archive", Outcome: "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	opSearch(w, r, s.localAdapter(user.RootReal), s.SearchMaxBytes)
}
