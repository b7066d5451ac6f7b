// Command filevaultd runs the multi-tenant file-management HTTP service.
package main

import (
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/glog"

	"github.com/sesukyothole/filevault/audit"
	"github.com/sesukyothole/filevault/auth"
	"github.com/sesukyothole/filevault/cloud"
	"github.com/sesukyothole/filevault/policy"
	"github.com/sesukyothole/filevault/server"
	"github.com/sesukyothole/filevault/storage"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	fileRoot := mustEnv("FILE_ROOT")
	sessionSecret := mustEnv("SESSION_SECRET")

	registry, err := loadRegistry(fileRoot)
	if err != nil {
		glog.Fatalf("filevaultd: load user registry: %v", err)
	}

	root, err := filepath.EvalSymlinks(fileRoot)
	if err != nil {
		glog.Fatalf("filevaultd: resolve FILE_ROOT %q: %v", fileRoot, err)
	}
	localAdapter := storage.NewLocalAdapter(root)
	if removed, err := storage.NewTrashStore(localAdapter).Reconcile(); err != nil {
		glog.Errorf("filevaultd: trash reconciliation: %v", err)
	} else if removed > 0 {
		glog.Infof("filevaultd: reconciled %d orphaned trash sidecar(s)", removed)
	}

	sink, err := audit.NewSink(envOr("AUDIT_LOG_PATH", "audit.log"))
	if err != nil {
		glog.Fatalf("filevaultd: open audit log: %v", err)
	}
	defer sink.Close()

	configs := cloud.NewConfigStore(envOr("SETTINGS_PATH", filepath.Join("data", "settings.json")))
	connections := cloud.NewConnectionRegistry(envIntOr("MAX_S3_CONNECTIONS", 5))

	archiveLargeBytes := int64(envIntOr("ARCHIVE_LARGE_MB", 100)) << 20
	searchMaxBytes := int64(envIntOr("SEARCH_MAX_BYTES", storage.SearchMaxBytes))

	srv := server.New(registry, auth.NewAuthority([]byte(sessionSecret)), configs, connections,
		sink, policy.Default(), archiveLargeBytes, searchMaxBytes)

	addr := envOr("LISTEN_ADDR", ":8080")
	glog.Infof("filevaultd: listening on %s, root %s", addr, root)
	if err := http.ListenAndServe(addr, srv.Routes()); err != nil {
		glog.Fatalf("filevaultd: serve: %v", err)
	}
}

func loadRegistry(fileRoot string) (*auth.Registry, error) {
	if usersFile := os.Getenv("USERS_FILE"); usersFile != "" {
		return auth.LoadRegistryFromFile(usersFile, fileRoot)
	}
	if usersJSON := os.Getenv("USERS_JSON"); usersJSON != "" {
		return auth.LoadRegistryFromJSON(usersJSON, fileRoot)
	}
	return auth.SingleAdminRegistry(mustEnv("ADMIN_PASSWORD"), fileRoot)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		glog.Fatalf("filevaultd: required environment variable %s is unset", key)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		glog.Warningf("filevaultd: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}
