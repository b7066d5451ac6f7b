package cloud_test

import (
	"testing"

	"github.com/sesukyothole/filevault/cloud"
	"github.com/sesukyothole/filevault/cmn"
	"github.com/sesukyothole/filevault/cmn/tassert"
)

func buildStub() (*cloud.S3Adapter, error) {
	return &cloud.S3Adapter{}, nil
}

func TestRegistryAttachDetach(t *testing.T) {
	r := cloud.NewConnectionRegistry(2)

	tassert.CheckFatal(t, r.Attach("sess1", "cfgA", buildStub))
	if _, ok := r.Resolve("sess1", "cfgA"); !ok {
		t.Fatalf("expected sess1/cfgA to resolve after attach")
	}

	r.Detach("sess1", "cfgA")
	if _, ok := r.Resolve("sess1", "cfgA"); ok {
		t.Fatalf("expected sess1/cfgA to be gone after detach")
	}
}

func TestRegistryCapBoundary(t *testing.T) {
	r := cloud.NewConnectionRegistry(2)

	tassert.CheckFatal(t, r.Attach("sess1", "cfgA", buildStub))
	tassert.CheckFatal(t, r.Attach("sess2", "cfgB", buildStub))

	err := r.Attach("sess3", "cfgC", buildStub)
	tassert.Fatalf(t, err != nil, "expected attach of a third distinct config to fail at cap")
	tassert.Fatalf(t, cmn.KindOf(err) == cmn.KindAtLimit, "expected KindAtLimit, got %v", cmn.KindOf(err))

	// Reusing an already-live config is not bound by the cap.
	tassert.CheckFatal(t, r.Attach("sess3", "cfgA", buildStub))
	if _, ok := r.Resolve("sess3", "cfgA"); !ok {
		t.Fatalf("expected sess3/cfgA to resolve after reuse-attach")
	}
}

func TestRegistryOnProfileDeleted(t *testing.T) {
	r := cloud.NewConnectionRegistry(5)
	tassert.CheckFatal(t, r.Attach("sess1", "cfgA", buildStub))
	tassert.CheckFatal(t, r.Attach("sess2", "cfgA", buildStub))

	r.OnProfileDeleted("cfgA")

	if _, ok := r.Resolve("sess1", "cfgA"); ok {
		t.Fatalf("expected sess1/cfgA invalidated after profile deletion")
	}
	if _, ok := r.Resolve("sess2", "cfgA"); ok {
		t.Fatalf("expected sess2/cfgA invalidated after profile deletion")
	}
}

func TestRegistryListForSession(t *testing.T) {
	r := cloud.NewConnectionRegistry(5)
	tassert.CheckFatal(t, r.Attach("sess1", "cfgA", buildStub))
	tassert.CheckFatal(t, r.Attach("sess1", "cfgB", buildStub))
	tassert.CheckFatal(t, r.Attach("sess2", "cfgC", buildStub))

	conns := r.ListForSession("sess1")
	tassert.Fatalf(t, len(conns.Connected) == 2, "expected 2 configs for sess1, got %d", len(conns.Connected))
	tassert.Fatalf(t, conns.MaxConnections == 5, "expected MaxConnections to be reported")
}

func TestRegistryAttachIdempotent(t *testing.T) {
	r := cloud.NewConnectionRegistry(1)
	tassert.CheckFatal(t, r.Attach("sess1", "cfgA", buildStub))
	// Re-attaching the same (session, config) pair must not consume capacity twice.
	tassert.CheckFatal(t, r.Attach("sess1", "cfgA", buildStub))
}
