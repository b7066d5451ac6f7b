package cloud_test

import (
	"path/filepath"
	"testing"

	"github.com/sesukyothole/filevault/cloud"
	"github.com/sesukyothole/filevault/cmn/tassert"
)

func TestConfigStoreCRUD(t *testing.T) {
	store := cloud.NewConfigStore(filepath.Join(t.TempDir(), "settings.json"))

	created, err := store.Create(cloud.S3ConfigProfile{
		Name: "prod", Region: "us-east-1", Bucket: "my-bucket",
		AccessKeyID: "AKIA...", SecretAccessKey: "shh",
	})
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, created.ID != "", "expected a minted id")

	list, err := store.List()
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(list) == 1, "expected one profile")
	tassert.Fatalf(t, list[0].SecretAccessKey == "", "expected list to redact the secret")

	got, err := store.Get(created.ID)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, got.SecretAccessKey == "shh", "expected Get to return the secret")

	updated, err := store.Update(created.ID, cloud.S3ConfigProfile{Name: "prod-renamed", Region: "us-east-1", Bucket: "my-bucket"})
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, updated.Name == "prod-renamed", "expected rename to persist")

	tassert.CheckFatal(t, store.Delete(created.ID, nil))
	list, err = store.List()
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(list) == 0, "expected profile removed")
}

func TestConfigStoreDeleteInvokesCallback(t *testing.T) {
	store := cloud.NewConfigStore(filepath.Join(t.TempDir(), "settings.json"))
	created, err := store.Create(cloud.S3ConfigProfile{Name: "a", Bucket: "b"})
	tassert.CheckFatal(t, err)

	var invokedWith string
	tassert.CheckFatal(t, store.Delete(created.ID, func(id string) { invokedWith = id }))
	tassert.Fatalf(t, invokedWith == created.ID, "expected onDeleted callback with the deleted id")
}

func TestConfigStoreDeleteMissing(t *testing.T) {
	store := cloud.NewConfigStore(filepath.Join(t.TempDir(), "settings.json"))
	err := store.Delete("does-not-exist", nil)
	tassert.Fatalf(t, err != nil, "expected error deleting an unknown profile")
}
