// Package audit appends one JSON line per security-relevant event to a
// single log file, the way the server is required to persist its audit
// trail (spec §6 "Persisted state").
package audit

import (
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/golang/glog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one audit-log line. Action-specific fields are left empty when
// not applicable to the action being recorded.
type Event struct {
	Timestamp string `json:"ts"`
	IP        string `json:"ip"`
	Action    string `json:"action"`

	User     string `json:"user,omitempty"`
	Path     string `json:"path,omitempty"`
	Dest     string `json:"dest,omitempty"`
	ConfigID string `json:"configId,omitempty"`
	Outcome  string `json:"outcome,omitempty"`

	// LoginReason carries the internal reason a login failed
	// ("user_not_found" or "bad_password"). It is logged for operators but
	// never surfaced over HTTP — spec §4.2/§7 require both to collapse to
	// one generic "invalid credentials" response.
	LoginReason string `json:"loginReason,omitempty"`
}

// Login failure reasons, recorded internally only.
const (
	ReasonUserNotFound = "user_not_found"
	ReasonBadPassword  = "bad_password"
)

// Sink appends Events to a single file, one jsoniter-encoded line each,
// under an exclusive lock so concurrent requests never interleave partial
// writes (spec §5: "single-writer lock around the append").
type Sink struct {
	mu   sync.Mutex
	file *os.File
}

// NewSink opens (creating if needed) the audit log at path for appending.
func NewSink(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}
	return &Sink{file: f}, nil
}

// Record appends ev as a single JSON line, stamping Timestamp if unset. A
// failure to write the audit log is logged but never propagated to the
// caller — an audit-log outage must not take down the file-management
// service itself.
func (s *Sink) Record(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(ev)
	if err != nil {
		glog.Errorf("audit: marshal event %+v: %v", ev, err)
		return
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		glog.Errorf("audit: write event: %v", err)
	}
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
