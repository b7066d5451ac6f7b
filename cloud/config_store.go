package cloud

import (
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/cmn/jsp"
)

// S3ConfigProfile is a persisted named S3 connection profile (spec §3).
type S3ConfigProfile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix,omitempty"`
	IsDefault       bool   `json:"isDefault,omitempty"`
	Active          bool   `json:"active,omitempty"`
}

// Redacted returns a copy with SecretAccessKey blanked, for list-surface
// responses (spec §4.8 — list operations MUST redact it).
func (p S3ConfigProfile) Redacted() S3ConfigProfile {
	p.SecretAccessKey = ""
	return p
}

type settingsDocument struct {
	S3Configs []S3ConfigProfile `json:"s3Configs"`
}

// ConfigStore persists S3ConfigProfiles to a single JSON document, guarded
// by an exclusive writer lock across each read-modify-write cycle (spec §5).
type ConfigStore struct {
	path string
	mu   sync.Mutex
}

// NewConfigStore builds a store backed by the document at path (typically
// "data/settings.json").
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

func (s *ConfigStore) load() (*settingsDocument, error) {
	var doc settingsDocument
	if err := jsp.Load(s.path, &doc, jsp.Options{Indent: true}); err != nil {
		if isNotExist(err) {
			return &settingsDocument{}, nil
		}
		return nil, cmn.NewError(cmn.KindUpstream, "s3config.load", s.path, err)
	}
	return &doc, nil
}

func (s *ConfigStore) save(doc *settingsDocument) error {
	if err := jsp.SaveAtomic(s.path, doc, jsp.Options{Indent: true}); err != nil {
		return cmn.NewError(cmn.KindUpstream, "s3config.save", s.path, err)
	}
	return nil
}

// List returns every profile with SecretAccessKey redacted.
func (s *ConfigStore) List() ([]S3ConfigProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]S3ConfigProfile, len(doc.S3Configs))
	for i, p := range doc.S3Configs {
		out[i] = p.Redacted()
	}
	return out, nil
}

// Get returns the profile by id, including its secret (needed for the
// settings UI editing flow and for constructing a live adapter).
func (s *ConfigStore) Get(id string) (*S3ConfigProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.S3Configs {
		if doc.S3Configs[i].ID == id {
			p := doc.S3Configs[i]
			return &p, nil
		}
	}
	return nil, nil
}

// Create mints a v4 UUID id and appends a new profile.
func (s *ConfigStore) Create(p S3ConfigProfile) (*S3ConfigProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	p.ID = uuid.New().String()
	doc.S3Configs = append(doc.S3Configs, p)
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update replaces the profile with the given id, keeping its id fixed.
func (s *ConfigStore) Update(id string, p S3ConfigProfile) (*S3ConfigProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.S3Configs {
		if doc.S3Configs[i].ID == id {
			p.ID = id
			doc.S3Configs[i] = p
			if err := s.save(doc); err != nil {
				return nil, err
			}
			return &p, nil
		}
	}
	return nil, cmn.NewError(cmn.KindNotFound, "s3config.update", id, nil)
}

// Delete removes the profile with the given id. onDeleted, if non-nil, is
// invoked with the id while still holding the store's lock so the
// connection registry can invalidate bindings atomically with respect to
// concurrent CRUD (spec §3: deletion must invalidate every bound session).
func (s *ConfigStore) Delete(id string, onDeleted func(id string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	kept := doc.S3Configs[:0]
	found := false
	for _, p := range doc.S3Configs {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return cmn.NewError(cmn.KindNotFound, "s3config.delete", id, nil)
	}
	doc.S3Configs = kept
	if err := s.save(doc); err != nil {
		return err
	}
	if onDeleted != nil {
		onDeleted(id)
	}
	return nil
}

func isNotExist(err error) bool { return os.IsNotExist(err) }
