// Package remote implements the abstract Remote contract (component D):
// deplist synchronization, query, push and pull, shared across every
// concrete backend (HTTP, FTP, shared folder).
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/edmhq/edm/identity"
)

// Transport is the minimal primitive contract a concrete backend (HTTP,
// FTP, folder) must implement. Remote builds query/pull/push and deplist
// synchronization entirely on top of these two operations plus Connect.
type Transport interface {
	// Connect establishes a session. It is called once before any other
	// operation and may be a no-op for stateless transports.
	Connect(ctx context.Context) error

	// GetFile fetches the blob named remoteName into localDir, returning
	// the path it was written to.
	GetFile(ctx context.Context, remoteName, localDir string) (string, error)

	// SendFile uploads the blob at localPath under remoteName.
	SendFile(ctx context.Context, localPath, remoteName string) error
}

const deplistName = "deplist.txt"

// Remote wraps a Transport with the deplist-backed query/pull/push logic
// common to every backend.
type Remote struct {
	Name      string
	Transport Transport
	Default   bool

	mu      sync.RWMutex
	valid   bool
	deplist []identity.Properties
}

// New wraps t in a Remote named name.
func New(name string, t Transport) *Remote {
	return &Remote{Name: name, Transport: t}
}

// Connect establishes the session, marks the remote valid on success, and
// pulls deplist.txt so Query has something to match against immediately
// afterwards — mirroring httpremote.Client.Connect, which primes its own
// cache the same way.
func (r *Remote) Connect(ctx context.Context) error {
	if err := r.Transport.Connect(ctx); err != nil {
		r.mu.Lock()
		r.valid = false
		r.mu.Unlock()
		return fmt.Errorf("remote %s: connect: %w", r.Name, err)
	}
	r.mu.Lock()
	r.valid = true
	r.mu.Unlock()
	return r.PullDeplist(ctx)
}

// Valid reports whether the remote is still usable in this process. It is
// cleared by any operation that observes a hard failure (e.g. a non-200
// HTTP response).
func (r *Remote) Valid() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.valid
}

func (r *Remote) invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

// PullDeplist downloads deplist.txt to a temp location and parses it into
// the cached deplist. A remote that has never had anything pushed to it
// has no deplist.txt yet; that is not a connectivity failure, so it leaves
// the cached deplist empty instead of invalidating the remote.
func (r *Remote) PullDeplist(ctx context.Context) error {
	tmp, err := os.MkdirTemp("", "edm-deplist-*")
	if err != nil {
		return fmt.Errorf("remote %s: pull deplist: %w", r.Name, err)
	}
	defer os.RemoveAll(tmp)
	path, err := r.Transport.GetFile(ctx, deplistName, tmp)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.mu.Lock()
			r.deplist = nil
			r.mu.Unlock()
			return nil
		}
		r.invalidate()
		return fmt.Errorf("remote %s: pull deplist: %w", r.Name, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("remote %s: pull deplist: %w", r.Name, err)
	}
	defer f.Close()
	list, err := parseDeplist(f)
	if err != nil {
		return fmt.Errorf("remote %s: pull deplist: %w", r.Name, err)
	}
	r.mu.Lock()
	r.deplist = list
	r.mu.Unlock()
	return nil
}

// PushDeplist writes the cached deplist locally and uploads it.
func (r *Remote) PushDeplist(ctx context.Context) error {
	tmp, err := os.MkdirTemp("", "edm-deplist-*")
	if err != nil {
		return fmt.Errorf("remote %s: push deplist: %w", r.Name, err)
	}
	defer os.RemoveAll(tmp)
	path := filepath.Join(tmp, deplistName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("remote %s: push deplist: %w", r.Name, err)
	}
	r.mu.RLock()
	list := append([]identity.Properties(nil), r.deplist...)
	r.mu.RUnlock()
	if err := writeDeplist(f, list); err != nil {
		f.Close()
		return fmt.Errorf("remote %s: push deplist: %w", r.Name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("remote %s: push deplist: %w", r.Name, err)
	}
	if err := r.Transport.SendFile(ctx, path, deplistName); err != nil {
		r.invalidate()
		return fmt.Errorf("remote %s: push deplist: %w", r.Name, err)
	}
	return nil
}

// Query returns every cached-deplist entry matching q, same semantics as
// Local Store's Query: matched, sorted by the total order, stable.
func (r *Remote) Query(q identity.Properties) []identity.Properties {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []identity.Properties
	for _, p := range r.deplist {
		if identity.Match(q, p) {
			out = append(out, p)
		}
	}
	identity.SortProperties(out)
	return out
}

// Pull resolves dep to a single remote object and downloads it into dest,
// producing a local "<name><hash>.tgz" (the filename the Transport
// reports).
func (r *Remote) Pull(ctx context.Context, dep identity.Properties, dest string) (string, error) {
	matches := r.Query(dep)
	if len(matches) == 0 {
		return "", fmt.Errorf("remote %s: pull: no match for %s", r.Name, identity.Format(dep))
	}
	best := matches[len(matches)-1]
	remoteName := best.DirName() + ".tgz"
	path, err := r.Transport.GetFile(ctx, remoteName, dest)
	if err != nil {
		r.invalidate()
		return "", fmt.Errorf("remote %s: pull %s: %w", r.Name, identity.Format(best), err)
	}
	return path, nil
}

// Push uploads file as the object for dep. It refuses when Query(dep)
// already returns a match unless force. On success it appends dep to the
// cached deplist and synchronizes it to the remote.
func (r *Remote) Push(ctx context.Context, dep identity.Properties, file string, force bool) error {
	if !force {
		if existing := r.Query(dep); len(existing) > 0 {
			log.Printf("remote %s: %s already exists, skipping (use force to overwrite)", r.Name, identity.Format(dep))
			return nil
		}
	}
	remoteName := dep.DirName() + ".tgz"
	if err := r.Transport.SendFile(ctx, file, remoteName); err != nil {
		r.invalidate()
		return fmt.Errorf("remote %s: push %s: %w", r.Name, identity.Format(dep), err)
	}
	r.mu.Lock()
	r.deplist = append(r.deplist, dep)
	r.mu.Unlock()
	if err := r.PushDeplist(ctx); err != nil {
		return err
	}
	return nil
}

// parseDeplist parses the deplist.txt grammar: one-line Properties form,
// one per line, trailing blank lines tolerated.
func parseDeplist(r io.Reader) ([]identity.Properties, error) {
	var out []identity.Properties
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p := identity.Parse(line)
		if p.Invalid() {
			continue
		}
		out = append(out, p)
	}
	return out, scanner.Err()
}

// writeDeplist writes list as deplist.txt: one-line Properties form, one
// per line, LF-terminated.
func writeDeplist(w io.Writer, list []identity.Properties) error {
	for _, p := range list {
		if _, err := io.WriteString(w, identity.Format(p)+"\n"); err != nil {
			return err
		}
	}
	return nil
}
