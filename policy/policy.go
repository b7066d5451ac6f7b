// Package policy gates the preview/edit/image operations by file
// extension and size, the way the spec's "Preview/Edit policy" component
// (spec §6) restricts which entries those operations accept.
package policy

import (
	"path"
	"strings"

	"github.com/sesukyothole/filevault/cmn"
)

const (
	// KiB and MiB match spec §6's byte caps.
	KiB = 1024
	MiB = 1024 * KiB

	// PreviewMaxBytes caps the "preview" operation (spec §6: "rejects
	// files over 200 KiB").
	PreviewMaxBytes = 200 * KiB

	// EditMaxBytes caps the "edit" operation (spec §6: "editable
	// extensions under 1 MiB").
	EditMaxBytes = 1 * MiB
)

// Gate holds the previewable/editable/image extension allow-lists. The
// zero value is unusable; use Default() or NewGate.
type Gate struct {
	previewable map[string]bool
	editable    map[string]bool
	image       map[string]bool
}

func toSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = true
	}
	return m
}

// NewGate builds a Gate from explicit extension lists (each entry without
// the leading dot, e.g. "txt", not ".txt").
func NewGate(previewable, editable, image []string) *Gate {
	return &Gate{
		previewable: toSet(previewable...),
		editable:    toSet(editable...),
		image:       toSet(image...),
	}
}

// Default returns the gate covering the common plain-text, config, and
// image extensions.
func Default() *Gate {
	text := []string{"txt", "md", "json", "yaml", "yml", "csv", "log", "go", "py", "js", "ts", "html", "css", "xml", "ini", "conf", "sh"}
	images := []string{"png", "jpg", "jpeg", "gif", "webp", "svg", "bmp"}
	return NewGate(text, text, images)
}

func ext(virtualPath string) string {
	e := path.Ext(virtualPath)
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

// AllowPreview checks whether virtualPath/size may be served by the
// "preview" operation.
func (g *Gate) AllowPreview(virtualPath string, size int64) error {
	if !g.previewable[ext(virtualPath)] {
		return cmn.NewError(cmn.KindInvalidRequest, "policy.preview", virtualPath, nil)
	}
	if size > PreviewMaxBytes {
		return cmn.NewError(cmn.KindPayloadTooLarge, "policy.preview", virtualPath, nil)
	}
	return nil
}

// AllowEdit checks whether virtualPath/size may be served by the "edit"
// operation.
func (g *Gate) AllowEdit(virtualPath string, size int64) error {
	if !g.editable[ext(virtualPath)] {
		return cmn.NewError(cmn.KindInvalidRequest, "policy.edit", virtualPath, nil)
	}
	if size > EditMaxBytes {
		return cmn.NewError(cmn.KindPayloadTooLarge, "policy.edit", virtualPath, nil)
	}
	return nil
}

// AllowImage checks whether virtualPath may be served by the "image"
// operation — no size cap, binary stream.
func (g *Gate) AllowImage(virtualPath string) error {
	if !g.image[ext(virtualPath)] {
		return cmn.NewError(cmn.KindInvalidRequest, "policy.image", virtualPath, nil)
	}
	return nil
}
