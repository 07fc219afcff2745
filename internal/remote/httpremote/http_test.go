package httpremote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edmhq/edm/identity"
)

func fooProps() identity.Properties {
	return identity.New("foo", "1.0", identity.Linux, identity.X86_64, identity.Shared, identity.GNU, "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

// fakeServer mimics the spec's wire protocol: GET /api returns the
// deplist, POST /api dispatches action=pull|push, POST /upload accepts
// large payloads, GET /files/<name> serves a pulled blob.
type fakeServer struct {
	deplist []identity.Properties
	blobs   map[string][]byte
	unauth  bool
	uploads int // pushes received on POST /upload
}

func newFakeServer() *fakeServer {
	return &fakeServer{blobs: make(map[string][]byte)}
}

func (s *fakeServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.unauth {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, "unauthorized")
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || u != "alice" || p != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, "bad credentials")
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api":
			var sb strings.Builder
			for _, p := range s.deplist {
				sb.WriteString(identity.Format(p) + "\n")
			}
			io.WriteString(w, sb.String())
		case r.Method == http.MethodPost && r.URL.Path == "/api":
			s.handleAPI(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			s.handlePush(w, r, true)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/files/"):
			name := strings.TrimPrefix(r.URL.Path, "/files/")
			data, ok := s.blobs[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (s *fakeServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch r.FormValue("action") {
	case "pull":
		name := r.FormValue("name")
		version := r.FormValue("version")
		blobName := fmt.Sprintf("%s-%s.tgz", name, version)
		if _, ok := s.blobs[blobName]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, "/files/"+blobName)
	case "push":
		s.handlePush(w, r, false)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (s *fakeServer) handlePush(w http.ResponseWriter, r *http.Request, upload bool) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	name := r.FormValue("name")
	version := r.FormValue("version")
	file, _, err := r.FormFile("package")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	blobName := fmt.Sprintf("%s-%s.tgz", name, version)
	s.blobs[blobName] = data
	if upload {
		s.uploads++
	}
	s.deplist = append(s.deplist, identity.New(name, version, identity.Linux, identity.X86_64,
		identity.Shared, identity.GNU, "", time.Now()))
	w.WriteHeader(http.StatusOK)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return &Client{
		BaseURL:  srv.URL,
		Username: "alice",
		Password: "secret",
		ErrorLog: filepath.Join(t.TempDir(), "error.log"),
	}
}

func TestPullDeplistRoundTrip(t *testing.T) {
	fs := newFakeServer()
	fs.deplist = []identity.Properties{fooProps()}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := c.Query(identity.New("foo", "*", "", "", "", "", "", time.Time{}))
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
}

func TestPushThenPullRoundTrip(t *testing.T) {
	fs := newFakeServer()
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(t.TempDir(), "payload.tgz")
	if err := os.WriteFile(file, []byte("package contents"), 0644); err != nil {
		t.Fatal(err)
	}
	dep := fooProps()
	if err := c.Push(context.Background(), dep, file, false); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	path, err := c.Pull(context.Background(), dep, dest)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "package contents" {
		t.Errorf("pulled content mismatch: %q", got)
	}
}

func TestPushSelectsUploadEndpointAboveThreshold(t *testing.T) {
	fs := newFakeServer()
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c := newTestClient(t, srv)
	file := filepath.Join(t.TempDir(), "big.tgz")
	big := make([]byte, uploadThreshold+1)
	if err := os.WriteFile(file, big, 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.Push(context.Background(), fooProps(), file, false); err != nil {
		t.Fatal(err)
	}
	if len(fs.blobs) != 1 {
		t.Fatalf("expected the oversized push to land via /upload, got %d blobs", len(fs.blobs))
	}
	if fs.uploads != 1 {
		t.Errorf("expected the oversized push to use POST /upload, got %d /upload pushes", fs.uploads)
	}
}

func TestUnauthorizedInvalidatesRemote(t *testing.T) {
	fs := newFakeServer()
	fs.unauth = true
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect to fail against an unauthorized server")
	}
	if c.Valid() {
		t.Errorf("remote should be invalid after a 401 response")
	}
	logBytes, err := os.ReadFile(c.ErrorLog)
	if err != nil {
		t.Fatalf("expected a failure to be recorded in error.log: %v", err)
	}
	if !strings.Contains(string(logBytes), "401") {
		t.Errorf("error.log does not mention the 401 status: %s", logBytes)
	}
}

func TestSanitizeServerPathRejectsEscape(t *testing.T) {
	if _, err := sanitizeServerPath("../../etc/passwd"); err == nil {
		t.Errorf("expected an error for a path-escaping server response")
	}
	if _, err := sanitizeServerPath(""); err == nil {
		t.Errorf("expected an error for an empty server response")
	}
	p, err := sanitizeServerPath("/files/foo-1.0.tgz")
	if err != nil || p != "/files/foo-1.0.tgz" {
		t.Errorf("sanitizeServerPath(valid) = %q, %v", p, err)
	}
}

func TestIdentityFieldsOmitsUnsetAttributes(t *testing.T) {
	c := &Client{}
	q := identity.New("foo", "*", "", "", "", "", "", time.Time{})
	fields := c.identityFields(q)
	for _, key := range []string{"os", "arch", "kind", "compiler"} {
		if _, ok := fields[key]; ok {
			t.Errorf("field %q should be omitted for a wildcard query", key)
		}
	}
	if fields["name"] != "foo" || fields["version"] != "*" {
		t.Errorf("name/version always included, got %v", fields)
	}
}
