// Package ftpremote implements the classic-FTP Remote Transport (the
// other half of component F): a control connection with username and
// password, STOR/RETR for the get_file/send_file contract, rooted at the
// configured URL's path component.
package ftpremote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultPort = "21"

// ftpStatusFileUnavailable is the RFC 959 response code an FTP server
// sends for RETR/STOR against a path that doesn't exist.
const ftpStatusFileUnavailable = 550

// Transport is an FTP-backed Remote backend. Addr is a URL of the form
// "ftp://[user[:pass]@]host[:port]/root/dir".
type Transport struct {
	Addr string

	conn *ftp.ServerConn
	root string
}

func (t *Transport) parse() (host, user, pass, root string, err error) {
	u, err := url.Parse(t.Addr)
	if err != nil {
		return "", "", "", "", fmt.Errorf("ftpremote: malformed address %q: %w", t.Addr, err)
	}
	host = u.Host
	if !strings.Contains(host, ":") {
		host = host + ":" + defaultPort
	}
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	root = strings.TrimSuffix(u.Path, "/")
	return host, user, pass, root, nil
}

// Connect dials the control connection and, when the address carries a
// user name, logs in. The jlaffaye/ftp client switches to binary (TYPE I)
// transfer mode inside Login; without a user name Login is not called and
// no transfer type is requested.
func (t *Transport) Connect(ctx context.Context) error {
	host, user, pass, root, err := t.parse()
	if err != nil {
		return err
	}
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ftpremote: dial %s: %w", host, err)
	}
	if user != "" {
		if err := conn.Login(user, pass); err != nil {
			conn.Quit()
			return fmt.Errorf("ftpremote: login: %w", err)
		}
	}
	t.conn = conn
	t.root = root
	return nil
}

func (t *Transport) remotePath(name string) string {
	if t.root == "" {
		return name
	}
	return path.Join(t.root, name)
}

// GetFile retrieves remoteName via RETR into localDir.
func (t *Transport) GetFile(ctx context.Context, remoteName, localDir string) (string, error) {
	resp, err := t.conn.Retr(t.remotePath(remoteName))
	if err != nil {
		var perr *textproto.Error
		if errors.As(err, &perr) && perr.Code == ftpStatusFileUnavailable {
			return "", fmt.Errorf("ftpremote: retr %s: %w", remoteName, os.ErrNotExist)
		}
		return "", fmt.Errorf("ftpremote: retr %s: %w", remoteName, err)
	}
	defer resp.Close()
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(localDir, filepath.Base(remoteName))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp); err != nil {
		return "", fmt.Errorf("ftpremote: retr %s: %w", remoteName, err)
	}
	return dst, nil
}

// SendFile uploads localPath via STOR under remoteName.
func (t *Transport) SendFile(ctx context.Context, localPath, remoteName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := t.conn.Stor(t.remotePath(remoteName), f); err != nil {
		return fmt.Errorf("ftpremote: stor %s: %w", remoteName, err)
	}
	return nil
}

// Close terminates the control connection.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Quit()
}
