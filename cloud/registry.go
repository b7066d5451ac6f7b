package cloud

import (
	"sync"

	"github.com/sesukyothole/filevault/cmn"
)

type bindingKey struct {
	sessionID string
	configID  string
}

// ConnectionRegistry is the in-memory, process-wide map from (sessionID,
// configID) to a live S3Adapter, bounded so that no more than
// MaxConnections distinct configIDs are live across the whole process at
// once (spec §4.9). It is explicitly non-replicated: each node maintains its
// own (spec §5).
type ConnectionRegistry struct {
	mu             sync.Mutex
	bindings       map[bindingKey]*S3Adapter
	liveConfigRefs map[string]int // configID -> number of bindings referencing it
	maxConnections int
}

// NewConnectionRegistry builds a registry capped at maxConnections distinct
// live configIDs (default 5 if maxConnections <= 0).
func NewConnectionRegistry(maxConnections int) *ConnectionRegistry {
	if maxConnections <= 0 {
		maxConnections = 5
	}
	return &ConnectionRegistry{
		bindings:       make(map[bindingKey]*S3Adapter),
		liveConfigRefs: make(map[string]int),
		maxConnections: maxConnections,
	}
}

// Attach binds sessionID to configID, constructing adapter via build if the
// config is not already live. It fails AtLimit if the config is not already
// live and the global distinct-configID count is already at cap — the cap
// check and the insert happen under the same critical section.
func (r *ConnectionRegistry) Attach(sessionID, configID string, build func() (*S3Adapter, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey{sessionID, configID}
	if _, ok := r.bindings[key]; ok {
		return nil // already bound, idempotent
	}

	_, alreadyLive := r.liveConfigRefs[configID]
	if !alreadyLive && len(r.liveConfigRefs) >= r.maxConnections {
		return cmn.NewError(cmn.KindAtLimit, "s3.attach", configID, nil)
	}

	adapter, err := build()
	if err != nil {
		return err
	}
	r.bindings[key] = adapter
	r.liveConfigRefs[configID]++
	return nil
}

// Detach removes the (sessionID, configID) binding, or every binding of
// sessionID if configID is empty.
func (r *ConnectionRegistry) Detach(sessionID, configID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if configID != "" {
		r.removeLocked(bindingKey{sessionID, configID})
		return
	}
	for key := range r.bindings {
		if key.sessionID == sessionID {
			r.removeLocked(key)
		}
	}
}

func (r *ConnectionRegistry) removeLocked(key bindingKey) {
	if _, ok := r.bindings[key]; !ok {
		return
	}
	delete(r.bindings, key)
	r.liveConfigRefs[key.configID]--
	if r.liveConfigRefs[key.configID] <= 0 {
		delete(r.liveConfigRefs, key.configID)
	}
}

// OnProfileDeleted removes every binding referring to configID across every
// session, invalidating them in response to an admin deleting the profile.
func (r *ConnectionRegistry) OnProfileDeleted(configID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.bindings {
		if key.configID == configID {
			r.removeLocked(key)
		}
	}
}

// Resolve returns the adapter bound to (sessionID, configID), or
// NotConnected (modeled as a nil, false return) if no such binding exists.
func (r *ConnectionRegistry) Resolve(sessionID, configID string) (*S3Adapter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.bindings[bindingKey{sessionID, configID}]
	return a, ok
}

// Connections describes a session's view of the registry for the
// s3/connections response: which configIDs it holds, plus the process-wide
// cap.
type Connections struct {
	Connected      []string
	MaxConnections int
}

// ListForSession returns the configIDs bound to sessionID.
func (r *ConnectionRegistry) ListForSession(sessionID string) Connections {
	r.mu.Lock()
	defer r.mu.Unlock()
	var connected []string
	for key := range r.bindings {
		if key.sessionID == sessionID {
			connected = append(connected, key.configID)
		}
	}
	return Connections{Connected: connected, MaxConnections: r.maxConnections}
}
