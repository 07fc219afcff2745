// Package httpremote implements the concrete HTTP(S) remote protocol
// (component E): GET /api for the deplist, POST /api for pull/push action
// dispatch, and POST /upload for large payloads.
package httpremote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/orcaman/writerseeker"

	"github.com/edmhq/edm/identity"
	"github.com/edmhq/edm/internal/remote"
)

// uploadThreshold is the payload size above which push selects POST
// /upload instead of POST /api.
const uploadThreshold = 50 * 1024 * 1024

// Client is an HTTP(S) remote backend.
type Client struct {
	// BaseURL is "http[s]://<host>[:<port>]", no trailing slash.
	BaseURL string
	// Username/Password supply HTTP basic authentication, if set.
	Username, Password string
	// ErrorLog is the path a non-200 response body is appended to, with
	// an ISO-timestamp banner. Defaults to "error.log" in the working
	// directory.
	ErrorLog string

	HTTPClient *http.Client

	mu    sync.RWMutex
	valid bool
	cache remote.DeplistCache
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) errorLogPath() string {
	if c.ErrorLog != "" {
		return c.ErrorLog
	}
	return "error.log"
}

// Valid reports whether the remote is still usable in this process.
func (c *Client) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valid
}

func (c *Client) setValid(v bool) {
	c.mu.Lock()
	c.valid = v
	c.mu.Unlock()
}

func (c *Client) authenticate(req *http.Request) {
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
}

// logFailure appends resp's body, with an ISO-timestamp banner, to the
// rolling error.log, per the failure mode in the spec.
func (c *Client) logFailure(status string, body []byte) {
	f, err := os.OpenFile(c.errorLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "\n--- %s %s ---\n%s\n", time.Now().UTC().Format(time.RFC3339), status, body)
}

// Connect performs a sanity GET /api to populate the cached deplist and
// validate the remote is reachable.
func (c *Client) Connect(ctx context.Context) error {
	list, err := c.fetchDeplist(ctx)
	if err != nil {
		c.setValid(false)
		return err
	}
	c.cache.Set(list)
	c.setValid(true)
	return nil
}

func (c *Client) fetchDeplist(ctx context.Context) ([]identity.Properties, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api", nil)
	if err != nil {
		return nil, err
	}
	c.authenticate(req)
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpremote: GET /api: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.logFailure(resp.Status, body)
		return nil, fmt.Errorf("httpremote: GET /api: HTTP status %s", resp.Status)
	}
	return remote.ParseDeplist(bytes.NewReader(body))
}

// PushDeplist is a no-op for the HTTP backend: GET /api recomputes the
// deplist server-side from whatever has been pushed, so there is no
// client-uploaded deplist.txt blob to synchronize, unlike FTP/folder.
func (c *Client) PushDeplist(ctx context.Context) error {
	return nil
}

// PullDeplist refreshes the cached deplist from GET /api.
func (c *Client) PullDeplist(ctx context.Context) error {
	list, err := c.fetchDeplist(ctx)
	if err != nil {
		c.setValid(false)
		return err
	}
	c.cache.Set(list)
	return nil
}

// Query returns every cached-deplist entry matching q.
func (c *Client) Query(q identity.Properties) []identity.Properties {
	return c.cache.Query(q)
}

// shortCode tables, per the wire-visible mapping in the spec. An unset
// field (empty result) is simply omitted from the multipart body.
func osCode(os identity.OS) string {
	switch os {
	case identity.Windows:
		return "w"
	case identity.Linux:
		return "l"
	}
	return ""
}

func archCode(a identity.Arch) string {
	switch a {
	case identity.X86_64:
		return "x"
	case identity.Aarch64:
		return "a"
	}
	return ""
}

func kindCode(k identity.Kind) string {
	switch k {
	case identity.Shared:
		return "r"
	case identity.Static:
		return "t"
	case identity.Header:
		return "h"
	case identity.AnyKind:
		return "a"
	}
	return ""
}

func compilerCode(comp identity.Compiler) string {
	switch comp {
	case identity.GNU:
		return "g"
	case identity.MSVC:
		return "m"
	}
	return ""
}

func (c *Client) identityFields(p identity.Properties) map[string]string {
	fields := map[string]string{
		"name":    p.Name,
		"version": p.Version,
	}
	if v := osCode(p.OS); v != "" {
		fields["os"] = v
	}
	if v := archCode(p.Arch); v != "" {
		fields["arch"] = v
	}
	if v := kindCode(p.Kind); v != "" {
		fields["kind"] = v
	}
	if v := compilerCode(p.Compiler); v != "" {
		fields["compiler"] = v
	}
	return fields
}

// Pull resolves dep to a single remote object: POST /api action=pull with
// the short-coded identity, then GET the path the server returns.
func (c *Client) Pull(ctx context.Context, dep identity.Properties, dest string) (string, error) {
	matches := c.Query(dep)
	if len(matches) == 0 {
		return "", fmt.Errorf("httpremote: pull: no match for %s", identity.Format(dep))
	}
	best := matches[len(matches)-1]

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("action", "pull")
	for k, v := range c.identityFields(best) {
		mw.WriteField(k, v)
	}
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authenticate(req)
	resp, err := c.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("httpremote: POST /api pull: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logFailure(resp.Status, respBody)
		c.setValid(false)
		return "", fmt.Errorf("httpremote: POST /api pull: HTTP status %s", resp.Status)
	}

	downloadPath, err := sanitizeServerPath(strings.TrimSpace(string(respBody)))
	if err != nil {
		return "", fmt.Errorf("httpremote: pull: %w", err)
	}
	return c.getFile(ctx, downloadPath, dest)
}

// getFile issues GET urlPath (already validated) and writes the body to a
// file under dest named by the final path segment.
func (c *Client) getFile(ctx context.Context, urlPath, dest string) (string, error) {
	full := c.BaseURL + urlPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return "", err
	}
	c.authenticate(req)
	resp, err := c.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("httpremote: GET %s: %w", urlPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logFailure(resp.Status, body)
		c.setValid(false)
		return "", fmt.Errorf("httpremote: GET %s: HTTP status %s", urlPath, resp.Status)
	}
	name := filepath.Base(urlPath)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", err
	}
	localPath := filepath.Join(dest, name)
	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", err
	}
	return localPath, nil
}

// sanitizeServerPath rejects an empty server-reported download path or
// one that contains ".." after cleaning, and returns the cleaned URL path
// rooted at "/" (a relative answer gets a leading "/"); scheme and host
// in the answer are dropped. getFile only ever uses the path's last
// segment as the local file name.
func sanitizeServerPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path in server response")
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("malformed path %q: %w", p, err)
	}
	clean := filepath.Clean(u.Path)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("unsafe path %q", p)
	}
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	return clean, nil
}

// Push uploads file as the object for dep, refusing when Query(dep)
// already returns a match unless force. Large payloads (over 50MB) select
// POST /upload instead of POST /api.
func (c *Client) Push(ctx context.Context, dep identity.Properties, file string, force bool) error {
	if !force {
		if existing := c.Query(dep); len(existing) > 0 {
			return nil
		}
	}
	st, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("httpremote: push: %w", err)
	}
	endpoint := "/api"
	if st.Size() > uploadThreshold {
		endpoint = "/upload"
	}

	ws := &writerseeker.WriterSeeker{}
	mw := multipart.NewWriter(ws)
	if endpoint == "/api" {
		mw.WriteField("action", "push")
	}
	for k, v := range c.identityFields(dep) {
		mw.WriteField(k, v)
	}
	part, err := mw.CreateFormFile("package", filepath.Base(file))
	if err != nil {
		return err
	}
	in, err := os.Open(file)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, in)
	in.Close()
	if err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, ws.Reader())
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authenticate(req)
	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("httpremote: POST %s: %w", endpoint, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logFailure(resp.Status, body)
		c.setValid(false)
		return fmt.Errorf("httpremote: POST %s: HTTP status %s", endpoint, resp.Status)
	}
	c.cache.Append(dep)
	return nil
}
