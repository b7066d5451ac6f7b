// Package server implements the thin HTTP dispatch layer over the core
// packages: a net/http.ServeMux mapping each operation in spec.md §6 to a
// handler, session-cookie middleware, and a single error-to-status
// translator (spec §7). Routing itself is deliberately minimal — no router
// framework, matching the teacher's own preference for a plain ServeMux.
package server

import (
	"net/http"
	"sync"

	"github.com/sesukyothole/filevault/audit"
	"github.com/sesukyothole/filevault/auth"
	"github.com/sesukyothole/filevault/cloud"
	"github.com/sesukyothole/filevault/policy"
	"github.com/sesukyothole/filevault/storage"
)

// Server holds every dependency the HTTP handlers dispatch into.
type Server struct {
	Users       *auth.Registry
	Sessions    *auth.Authority
	Configs     *cloud.ConfigStore
	Connections *cloud.ConnectionRegistry
	Audit       *audit.Sink
	Policy      *policy.Gate

	ArchiveLargeBytes int64
	SearchMaxBytes    int64

	mu       sync.Mutex
	adapters map[string]*storage.LocalAdapter
}

// New builds a Server. archiveLargeBytes/searchMaxBytes of zero fall back
// to their package defaults.
func New(users *auth.Registry, sessions *auth.Authority, configs *cloud.ConfigStore,
	connections *cloud.ConnectionRegistry, sink *audit.Sink, gate *policy.Gate,
	archiveLargeBytes, searchMaxBytes int64) *Server {
	return &Server{
		Users: users, Sessions: sessions, Configs: configs, Connections: connections,
		Audit: sink, Policy: gate,
		ArchiveLargeBytes: archiveLargeBytes, SearchMaxBytes: searchMaxBytes,
		adapters: make(map[string]*storage.LocalAdapter),
	}
}

// localAdapter returns the (cached, process-lifetime) LocalAdapter for
// rootReal, so that requests for the same user share the adapter's trash
// sidecar mutex instead of racing across independently constructed
// instances (spec §5).
func (s *Server) localAdapter(rootReal string) *storage.LocalAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.adapters[rootReal]; ok {
		return a
	}
	a := storage.NewLocalAdapter(rootReal)
	s.adapters[rootReal] = a
	return a
}

// Routes builds the ServeMux wiring every operation in spec.md §6.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.requireSession(s.handleLogout))

	mux.HandleFunc("POST /api/list", s.requireSession(s.handleList))
	mux.HandleFunc("GET /api/download", s.requireSession(s.handleDownload))
	mux.HandleFunc("POST /api/preview", s.requireSession(s.handlePreview))
	mux.HandleFunc("GET /api/image", s.requireSession(s.handleImage))
	mux.HandleFunc("GET /api/edit", s.requireSession(s.handleEditRead))
	mux.HandleFunc("POST /api/edit", s.requireWrite(s.handleEditWrite))
	mux.HandleFunc("POST /api/upload", s.requireWrite(s.handleUpload))
	mux.HandleFunc("POST /api/mkdir", s.requireWrite(s.handleMkdir))
	mux.HandleFunc("POST /api/move", s.requireWrite(s.handleMove))
	mux.HandleFunc("POST /api/copy", s.requireWrite(s.handleCopy))
	mux.HandleFunc("POST /api/trash", s.requireWrite(s.handleTrash))
	mux.HandleFunc("GET /api/trash", s.requireSession(s.handleTrashList))
	mux.HandleFunc("POST /api/trash/restore", s.requireWrite(s.handleTrashRestore))
	mux.HandleFunc("GET /api/archive", s.requireSession(s.handleArchive))
	mux.HandleFunc("POST /api/search", s.requireSession(s.handleSearch))

	mux.HandleFunc("GET /api/s3/configs", s.requireAdmin(s.handleS3ConfigsList))
	mux.HandleFunc("POST /api/s3/configs", s.requireAdmin(s.handleS3ConfigCreate))
	mux.HandleFunc("PUT /api/s3/configs/{id}", s.requireAdmin(s.handleS3ConfigUpdate))
	mux.HandleFunc("DELETE /api/s3/configs/{id}", s.requireAdmin(s.handleS3ConfigDelete))
	mux.HandleFunc("POST /api/s3/configs/{id}/test", s.requireAdmin(s.handleS3ConfigTest))

	mux.HandleFunc("POST /api/s3/connect", s.requireSession(s.handleS3Connect))
	mux.HandleFunc("POST /api/s3/disconnect", s.requireSession(s.handleS3Disconnect))
	mux.HandleFunc("GET /api/s3/connections", s.requireSession(s.handleS3Connections))

	mux.HandleFunc("POST /api/s3/list", s.requireSession(s.handleS3List))
	mux.HandleFunc("GET /api/s3/download", s.requireSession(s.handleS3Download))
	mux.HandleFunc("POST /api/s3/upload", s.requireWrite(s.handleS3Upload))
	mux.HandleFunc("POST /api/s3/mkdir", s.requireWrite(s.handleS3Mkdir))
	mux.HandleFunc("POST /api/s3/move", s.requireWrite(s.handleS3Move))
	mux.HandleFunc("POST /api/s3/copy", s.requireWrite(s.handleS3Copy))
	mux.HandleFunc("POST /api/s3/delete", s.requireWrite(s.handleS3Delete))
	mux.HandleFunc("POST /api/s3/search", s.requireSession(s.handleS3Search))

	return mux
}
