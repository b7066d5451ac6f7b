package server

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/sesukyothole/filevault/audit"
	"github.com/sesukyothole/filevault/auth"
	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/policy"
	"github.com/sesukyothole/filevault/storage"
)

// The op* functions implement spec.md §6's operation table against any
// storage.Adapter — shared by the local (/api/*) and S3 (/api/s3/*)
// handlers, which differ only in which adapter and configId they pass
// through and in whether trash is available (local only, per spec §6).

type listRequest struct {
	Path     string `json:"path"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

type listResponse struct {
	Path     string          `json:"path"`
	Parent   string          `json:"parent"`
	Entries  []storage.Entry `json:"entries"`
	Total    int             `json:"total"`
	Page     int             `json:"page,omitempty"`
	PageSize int             `json:"pageSize,omitempty"`
	User     string          `json:"user"`
	Role     auth.Role       `json:"role"`
}

func opList(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, user *auth.User) {
	var req listRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts := storage.ListOptions{}
	if req.PageSize > 0 {
		opts.Limit = req.PageSize
		opts.Offset = (max(req.Page, 1) - 1) * req.PageSize
	}
	res, err := adapter.List(r.Context(), req.Path, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := listResponse{
		Path: req.Path, Parent: path.Dir(req.Path),
		Entries: res.Entries, Total: res.Total,
		Page: req.Page, PageSize: req.PageSize,
		User: user.Username, Role: user.Role,
	}
	writeJSON(w, http.StatusOK, resp)
}

func opDownload(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, virtualPath string) {
	entry, err := adapter.Stat(r.Context(), virtualPath)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		writeError(w, cmn.NewError(cmn.KindNotFound, "download", virtualPath, nil))
		return
	}
	data, err := adapter.Read(r.Context(), virtualPath)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", storage.ContentDisposition(entry.Name))
	w.Header().Set("Content-Type", mimeTypeFor(entry.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type previewResponse struct {
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

func opPreview(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, gate *policy.Gate, virtualPath string) {
	entry, err := adapter.Stat(r.Context(), virtualPath)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		writeError(w, cmn.NewError(cmn.KindNotFound, "preview", virtualPath, nil))
		return
	}
	if err := gate.AllowPreview(virtualPath, entry.Size); err != nil {
		writeError(w, err)
		return
	}
	data, err := adapter.Read(r.Context(), virtualPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Content: string(data), Size: entry.Size})
}

func opImage(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, gate *policy.Gate, virtualPath string) {
	if err := gate.AllowImage(virtualPath); err != nil {
		writeError(w, err)
		return
	}
	data, err := adapter.Read(r.Context(), virtualPath)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeTypeFor(virtualPath))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type editReadResponse struct {
	Content string `json:"content"`
}

func opEditRead(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, gate *policy.Gate, virtualPath string) {
	entry, err := adapter.Stat(r.Context(), virtualPath)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		writeError(w, cmn.NewError(cmn.KindNotFound, "edit", virtualPath, nil))
		return
	}
	if err := gate.AllowEdit(virtualPath, entry.Size); err != nil {
		writeError(w, err)
		return
	}
	data, err := adapter.Read(r.Context(), virtualPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editReadResponse{Content: string(data)})
}

type editWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func opEditWrite(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, gate *policy.Gate, sink *audit.Sink, ip, action string) {
	var req editWriteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := gate.AllowEdit(req.Path, int64(len(req.Content))); err != nil {
		writeError(w, err)
		return
	}
	if err := adapter.Write(r.Context(), req.Path, []byte(req.Content)); err != nil {
		writeError(w, err)
		return
	}
	sink.Record(audit.Event{IP: ip, Action: action, Path: req.Path, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type uploadResult struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

func opUpload(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, sink *audit.Sink, ip, action string) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, cmn.NewError(cmn.KindInvalidRequest, "upload", "", err))
		return
	}
	dir := r.FormValue("path")
	overwrite := r.FormValue("overwrite") == "true"
	files := r.MultipartForm.File["files"]

	results := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		dest := path.Join(dir, fh.Filename)
		if !overwrite {
			exists, err := adapter.Exists(r.Context(), dest)
			if err != nil {
				writeError(w, err)
				return
			}
			if exists {
				writeError(w, cmn.NewError(cmn.KindConflict, "upload", dest, nil))
				return
			}
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, cmn.NewError(cmn.KindInvalidRequest, "upload", dest, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, cmn.NewError(cmn.KindUpstream, "upload", dest, err))
			return
		}
		if err := adapter.Write(r.Context(), dest, data); err != nil {
			writeError(w, err)
			return
		}
		sink.Record(audit.Event{IP: ip, Action: action, Path: dest, Outcome: "ok"})
		results = append(results, uploadResult{Name: fh.Filename, OK: true})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": results})
}

type mkdirRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func opMkdir(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, sink *audit.Sink, ip, action string) {
	var req mkdirRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dest := path.Join(req.Path, req.Name)
	if err := adapter.Mkdir(r.Context(), dest); err != nil {
		writeError(w, err)
		return
	}
	sink.Record(audit.Event{IP: ip, Action: action, Path: dest, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type moveCopyRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func opMove(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, sink *audit.Sink, ip, action string) {
	var req moveCopyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := adapter.Move(r.Context(), req.From, req.To); err != nil {
		writeError(w, err)
		return
	}
	sink.Record(audit.Event{IP: ip, Action: action, Path: req.From, Dest: req.To, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func opCopy(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, sink *audit.Sink, ip, action string) {
	var req moveCopyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := adapter.Copy(r.Context(), req.From, req.To); err != nil {
		writeError(w, err)
		return
	}
	sink.Record(audit.Event{IP: ip, Action: action, Path: req.From, Dest: req.To, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func opDelete(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, sink *audit.Sink, ip, action string) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := adapter.Delete(r.Context(), req.Path); err != nil {
		writeError(w, err)
		return
	}
	sink.Record(audit.Event{IP: ip, Action: action, Path: req.Path, Outcome: "ok"})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type searchRequest struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

func opSearch(w http.ResponseWriter, r *http.Request, adapter storage.Adapter, maxBytes int64) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	hits, err := storage.Search(r.Context(), adapter, req.Path, req.Query, maxBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func mimeTypeFor(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

