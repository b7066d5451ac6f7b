package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sesukyothole/filevault/audit"
	"github.com/sesukyothole/filevault/auth"
	"github.com/sesukyothole/filevault/cloud"
	"github.com/sesukyothole/filevault/cmn/tassert"
	"github.com/sesukyothole/filevault/policy"
	"github.com/sesukyothole/filevault/server"
)

type testClient struct {
	t      *testing.T
	srv    *httptest.Server
	cookie *http.Cookie
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	root := t.TempDir()
	registry, err := auth.SingleAdminRegistry("hunter2", root)
	tassert.CheckFatal(t, err)

	// settings and audit log live outside the served root so they never
	// show up in its listings.
	stateDir := t.TempDir()
	sessions := auth.NewAuthority([]byte("test-secret"))
	configs := cloud.NewConfigStore(filepath.Join(stateDir, "settings.json"))
	connections := cloud.NewConnectionRegistry(5)
	sink, err := audit.NewSink(filepath.Join(stateDir, "audit.log"))
	tassert.CheckFatal(t, err)

	srv := server.New(registry, sessions, configs, connections, sink, policy.Default(), 0, 0)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testClient{t: t, srv: ts}
}

func (c *testClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		tassert.CheckFatal(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, reader)
	tassert.CheckFatal(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	resp, err := c.srv.Client().Do(req)
	tassert.CheckFatal(c.t, err)
	for _, ck := range resp.Cookies() {
		if ck.Name == "session" {
			c.cookie = ck
		}
	}
	return resp
}

func (c *testClient) login(username, password string) *http.Response {
	return c.do(http.MethodPost, "/api/login", map[string]string{"username": username, "password": password})
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	tassert.CheckFatal(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestLoginRequiredForList(t *testing.T) {
	c := newTestClient(t)
	resp := c.do(http.MethodPost, "/api/list", map[string]string{"path": "/"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusUnauthorized, "expected 401 without session, got %d", resp.StatusCode)
}

func TestLoginWrongPasswordIsGenericallyUnauthorized(t *testing.T) {
	c := newTestClient(t)
	resp := c.login("admin", "wrong")
	tassert.Fatalf(t, resp.StatusCode == http.StatusUnauthorized, "expected 401, got %d", resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	tassert.Fatalf(t, body["error"] != "", "expected an error message")
}

func TestLoginListMkdirMoveRoundTrip(t *testing.T) {
	c := newTestClient(t)
	resp := c.login("admin", "hunter2")
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected login to succeed, got %d", resp.StatusCode)
	resp.Body.Close()
	tassert.Fatalf(t, c.cookie != nil, "expected a session cookie after login")

	resp = c.do(http.MethodPost, "/api/mkdir", map[string]string{"path": "/", "name": "docs"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected mkdir to succeed, got %d", resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/list", map[string]string{"path": "/"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected list to succeed, got %d", resp.StatusCode)
	var listResp struct {
		Entries []struct {
			Name string `json:"name"`
		} `json:"entries"`
	}
	decodeBody(t, resp, &listResp)
	tassert.Fatalf(t, len(listResp.Entries) == 1 && listResp.Entries[0].Name == "docs", "expected docs entry, got %+v", listResp.Entries)

	resp = c.do(http.MethodPost, "/api/move", map[string]string{"from": "/docs", "to": "/renamed"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected move to succeed, got %d", resp.StatusCode)
	resp.Body.Close()
}

func TestEditWriteThenReadRoundTrip(t *testing.T) {
	c := newTestClient(t)
	c.login("admin", "hunter2").Body.Close()

	resp := c.do(http.MethodPost, "/api/edit", map[string]string{"path": "/note.txt", "content": "hello world"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected edit write to succeed, got %d", resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/edit?path=/note.txt", nil)
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected edit read to succeed, got %d", resp.StatusCode)
	var body struct {
		Content string `json:"content"`
	}
	decodeBody(t, resp, &body)
	tassert.Fatalf(t, body.Content == "hello world", "got content %q", body.Content)
}

func TestPreviewRejectsNonPreviewableExtension(t *testing.T) {
	c := newTestClient(t)
	c.login("admin", "hunter2").Body.Close()

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	tassert.CheckFatal(t, mw.WriteField("path", "/"))
	fw, err := mw.CreateFormFile("files", "note.bin")
	tassert.CheckFatal(t, err)
	_, err = fw.Write([]byte{0x00, 0x01, 0x02})
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, c.srv.URL+"/api/upload", &form)
	tassert.CheckFatal(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(c.cookie)
	resp, err := c.srv.Client().Do(req)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected upload to succeed, got %d", resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/preview", map[string]string{"path": "/note.bin"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusBadRequest, "expected non-previewable extension to 400, got %d", resp.StatusCode)
}

func TestTrashAndRestoreRoundTrip(t *testing.T) {
	c := newTestClient(t)
	c.login("admin", "hunter2").Body.Close()

	resp := c.do(http.MethodPost, "/api/edit", map[string]string{"path": "/note.txt", "content": "hi"})
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/trash", map[string]string{"path": "/note.txt"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected trash to succeed, got %d", resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/trash", nil)
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected trash list to succeed, got %d", resp.StatusCode)
	var listBody struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	decodeBody(t, resp, &listBody)
	tassert.Fatalf(t, len(listBody.Items) == 1, "expected 1 trashed item, got %d", len(listBody.Items))

	resp = c.do(http.MethodPost, "/api/trash/restore", map[string]string{"id": listBody.Items[0].ID})
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected restore to succeed, got %d", resp.StatusCode)
	resp.Body.Close()
}

func TestReadOnlyRoleForbiddenFromMutatingOps(t *testing.T) {
	root := t.TempDir()
	usersDoc := `[{"username":"viewer","role":"read-only","rootPath":"/","secret":"pw"}]`
	registry, err := auth.LoadRegistryFromJSON(usersDoc, root)
	tassert.CheckFatal(t, err)

	sessions := auth.NewAuthority([]byte("test-secret"))
	configs := cloud.NewConfigStore(filepath.Join(root, "settings.json"))
	connections := cloud.NewConnectionRegistry(5)
	sink, err := audit.NewSink(filepath.Join(root, "audit.log"))
	tassert.CheckFatal(t, err)
	srv := server.New(registry, sessions, configs, connections, sink, policy.Default(), 0, 0)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	c := &testClient{t: t, srv: ts}

	resp := c.login("viewer", "pw")
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "expected login to succeed, got %d", resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/mkdir", map[string]string{"path": "/", "name": "nope"})
	tassert.Fatalf(t, resp.StatusCode == http.StatusForbidden, "expected 403 for read-only mutation, got %d", resp.StatusCode)
}
