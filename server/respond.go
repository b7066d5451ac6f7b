package server

import (
	"bytes"
	"io"
	"net"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/golang/glog"

	"github.com/sesukyothole/filevault/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("server: encode response: %v", err)
	}
}

// writeError maps err to the status/message taxonomy in spec §7 — the
// outermost point where an internal error Kind becomes an HTTP response.
func writeError(w http.ResponseWriter, err error) {
	status := cmn.HTTPStatus(cmn.KindOf(err))
	writeJSON(w, status, map[string]string{"error": cmn.PublicMessage(err)})
}

// decodeJSON buffers the request body so it can be decoded more than once —
// several S3 handlers peek a configId out of the body before an op*
// function decodes the same body again for its own fields.
func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return cmn.NewError(cmn.KindInvalidRequest, "decode", "", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err := json.Unmarshal(data, v); err != nil {
		return cmn.NewError(cmn.KindInvalidRequest, "decode", "", err)
	}
	return nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
