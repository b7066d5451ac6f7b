package policy_test

import (
	"testing"

	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/policy"
	"github.com/sesukyothole/filevault/cmn/tassert"
)

func TestAllowPreviewExtension(t *testing.T) {
	g := policy.Default()

	tassert.CheckFatal(t, g.AllowPreview("/notes/readme.txt", 100))

	err := g.AllowPreview("/bin/app.exe", 100)
	tassert.Fatalf(t, err != nil, "expected non-previewable extension to fail")
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindInvalidRequest, "expected KindInvalidRequest, got %v", cmn.KindOf(err))
}

func TestAllowPreviewSizeBoundary(t *testing.T) {
	g := policy.Default()

	tassert.CheckFatal(t, g.AllowPreview("/a.txt", policy.PreviewMaxBytes))

	err := g.AllowPreview("/a.txt", policy.PreviewMaxBytes+1)
	tassert.Fatalf(t, err != nil, "expected 200KiB+1 to be rejected")
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindPayloadTooLarge, "expected KindPayloadTooLarge, got %v", cmn.KindOf(err))
}

func TestAllowEditSizeBoundary(t *testing.T) {
	g := policy.Default()

	tassert.CheckFatal(t, g.AllowEdit("/a.md", policy.EditMaxBytes))

	err := g.AllowEdit("/a.md", policy.EditMaxBytes+1)
	tassert.Fatalf(t, err != nil, "expected 1MiB+1 to be rejected")
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindPayloadTooLarge, "expected KindPayloadTooLarge, got %v", cmn.KindOf(err))
}

func TestAllowImageExtension(t *testing.T) {
	g := policy.Default()
	tassert.CheckFatal(t, g.AllowImage("/pics/cat.png"))

	err := g.AllowImage("/pics/cat.txt")
	tassert.Fatalf(t, err != nil, "expected non-image extension to fail")
}

func TestExtensionCaseInsensitive(t *testing.T) {
	g := policy.Default()
	tassert.CheckFatal(t, g.AllowPreview("/NOTES.TXT", 10))
	tassert.CheckFatal(t, g.AllowImage("/PIC.PNG"))
}
