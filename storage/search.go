package storage

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/sesukyothole/filevault/cmn"
)

// SearchMaxBytes is the default SEARCH_MAX_BYTES cap: content matching is
// only attempted for files at or under this size; larger files are still
// matched by name (spec §6: "byte-scan-based name/content match, files ≤
// 200 KiB, skips binary (NUL-containing) content").
const SearchMaxBytes = 200 * 1024

// SearchHit is one matching entry, with its full virtual path.
type SearchHit struct {
	Path  string
	Entry Entry
}

// Search walks adapter recursively from root, matching query
// case-insensitively against each entry's name and, for files at or under
// maxBytes, its content — skipping files whose content contains a NUL byte
// (treated as binary). maxBytes <= 0 uses SearchMaxBytes.
func Search(ctx context.Context, adapter Adapter, root, query string, maxBytes int64) ([]SearchHit, error) {
	if maxBytes <= 0 {
		maxBytes = SearchMaxBytes
	}
	query = strings.ToLower(query)
	var hits []SearchHit
	if err := walkSearch(ctx, adapter, root, query, maxBytes, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

func walkSearch(ctx context.Context, adapter Adapter, dir, query string, maxBytes int64, hits *[]SearchHit) error {
	res, err := adapter.List(ctx, dir, ListOptions{})
	if err != nil {
		return err
	}
	for _, e := range res.Entries {
		full := path.Join(dir, e.Name)
		matched := strings.Contains(strings.ToLower(e.Name), query)
		if !matched && e.Type == TypeFile && e.Size <= maxBytes {
			content, err := adapter.Read(ctx, full)
			if err == nil && !bytes.ContainsRune(content, 0) && bytes.Contains(bytes.ToLower(content), []byte(query)) {
				matched = true
			} else if err != nil && cmn.KindOf(err) == cmn.KindUpstream {
				return err
			}
		}
		if matched {
			*hits = append(*hits, SearchHit{Path: full, Entry: e})
		}
		if e.Type == TypeDir {
			if err := walkSearch(ctx, adapter, full, query, maxBytes, hits); err != nil {
				return err
			}
		}
	}
	return nil
}
