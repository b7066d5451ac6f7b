// Package storage defines the StorageAdapter contract shared by the local
// filesystem and S3 backends (spec §4.3), plus the local backend, its trash
// bookkeeping, and the archive streamer.
package storage

import (
	"context"
	"sort"
	"strings"
)

// EntryType distinguishes directory members.
type EntryType string

const (
	TypeDir  EntryType = "dir"
	TypeFile EntryType = "file"
)

// Entry is a directory member: name (leaf, no slashes, non-empty, never "."
// or ".."), type, size (0 for dirs), and mtime in epoch milliseconds.
type Entry struct {
	Name  string    `json:"name"`
	Type  EntryType `json:"type"`
	Size  int64     `json:"size"`
	Mtime int64     `json:"mtime"`
}

// ListOptions bounds a list() call; Limit absent (zero) returns everything.
type ListOptions struct {
	Limit  int
	Offset int
}

// ListResult is the paginated view returned by list(): entries plus the
// unpaginated total count.
type ListResult struct {
	Entries []Entry
	Total   int
}

// Adapter is the uniform CRUD surface over opaque virtual paths that both
// concrete backends (LocalAdapter, cloud.S3Adapter) implement. Callers never
// pattern-match on which variant they hold.
type Adapter interface {
	List(ctx context.Context, path string, opts ListOptions) (*ListResult, error)
	Stat(ctx context.Context, path string) (*Entry, error) // nil, nil on not-found
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Move(ctx context.Context, source, dest string) error
	Copy(ctx context.Context, source, dest string) error
	Mkdir(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// SortEntries orders entries directories-first, then files, each group in
// case-insensitive name order (spec §4.3/§8).
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Type == TypeDir) != (b.Type == TypeDir) {
			return a.Type == TypeDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

// Paginate applies offset then limit to entries, matching list()'s
// semantics: limit==0 means "return everything after offset".
func Paginate(entries []Entry, opts ListOptions) []Entry {
	total := len(entries)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	sliced := entries[offset:]
	if opts.Limit > 0 && opts.Limit < len(sliced) {
		sliced = sliced[:opts.Limit]
	}
	return sliced
}
