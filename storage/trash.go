package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/cmn/jsp"
)

// TrashRecord is the sidecar metadata for one trashed item (spec §3).
type TrashRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OriginalPath string    `json:"originalPath"`
	DeletedAt    int64     `json:"deletedAt"` // epoch ms
	Type         EntryType `json:"type"`
	Size         int64     `json:"size"`
	TrashName    string    `json:"trashName"`
}

func newRecordID() string { return uuid.New().String() }

func sidecarPath(metaDir, id string) string {
	return filepath.Join(metaDir, id+".json")
}

func writeSidecar(metaDir string, rec *TrashRecord) error {
	if err := jsp.SaveAtomic(sidecarPath(metaDir, rec.ID), rec, jsp.Options{Indent: true}); err != nil {
		return cmn.NewError(cmn.KindUpstream, "trash", rec.OriginalPath, err)
	}
	return nil
}

// TrashStore is the read-side view of the LocalAdapter's own sidecars: it
// enumerates and consumes .meta/*.json records, delegating the actual
// restore rename back to the adapter that owns the trash directory.
type TrashStore struct {
	adapter *LocalAdapter
}

// NewTrashStore builds a TrashStore over adapter's trash directory.
func NewTrashStore(adapter *LocalAdapter) *TrashStore {
	return &TrashStore{adapter: adapter}
}

// List enumerates *.json sidecars, discards any record missing id,
// trashName, or originalPath, and sorts by deletedAt descending.
func (s *TrashStore) List() ([]*TrashRecord, error) {
	metaDir := filepath.Join(s.adapter.RootReal, TrashMetaSubdir)
	entries, err := os.ReadDir(metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cmn.NewError(cmn.KindUpstream, "trash.list", "", err)
	}
	records := make([]*TrashRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var rec TrashRecord
		if err := jsp.Load(filepath.Join(metaDir, e.Name()), &rec, jsp.Options{Indent: true}); err != nil {
			continue // corrupt sidecar, tolerated read-side
		}
		if rec.ID == "" || rec.TrashName == "" || rec.OriginalPath == "" {
			continue
		}
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DeletedAt > records[j].DeletedAt })
	return records, nil
}

// Consume restores the record with the given id via the adapter, then
// unlinks the sidecar on success.
func (s *TrashStore) Consume(ctx context.Context, id string) error {
	metaDir := filepath.Join(s.adapter.RootReal, TrashMetaSubdir)
	path := sidecarPath(metaDir, id)
	var rec TrashRecord
	if err := jsp.Load(path, &rec, jsp.Options{Indent: true}); err != nil {
		return cmn.NewError(cmn.KindNotFound, "trash.restore", id, err)
	}
	if err := s.adapter.Restore(ctx, &rec); err != nil {
		return err
	}
	return os.Remove(path)
}

// Reconcile is the startup reconciliation pass required by spec §5: trash
// and restore are not transactional (the sidecar is written before the
// rename), so a sidecar whose trashName target never landed is an orphan
// and is deleted; a trash item with no sidecar is left discoverable only by
// filesystem inspection, per spec.
func (s *TrashStore) Reconcile() (removed int, err error) {
	metaDir := filepath.Join(s.adapter.RootReal, TrashMetaSubdir)
	trashDir := filepath.Join(s.adapter.RootReal, TrashSubdir)
	entries, err := os.ReadDir(metaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("trash reconcile: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		sidecar := filepath.Join(metaDir, e.Name())
		var rec TrashRecord
		if err := jsp.Load(sidecar, &rec, jsp.Options{Indent: true}); err != nil {
			continue
		}
		if rec.TrashName == "" {
			continue
		}
		if _, statErr := os.Lstat(filepath.Join(trashDir, rec.TrashName)); os.IsNotExist(statErr) {
			os.Remove(sidecar)
			removed++
		}
	}
	return removed, nil
}
