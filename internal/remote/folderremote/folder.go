// Package folderremote implements the directory-backed Remote Transport
// (half of component F): the "remote" is a plain directory, files moved
// with filesystem primitives, no credentials.
package folderremote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edmhq/edm/internal/store"
)

// Transport is a filesystem-directory Remote backend.
type Transport struct {
	// Dir is the directory standing in for the remote.
	Dir string
}

// Connect verifies Dir exists and is a directory.
func (t *Transport) Connect(ctx context.Context) error {
	fi, err := os.Stat(t.Dir)
	if err != nil {
		return fmt.Errorf("folderremote: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("folderremote: %s is not a directory", t.Dir)
	}
	return nil
}

// GetFile copies remoteName out of Dir into localDir.
func (t *Transport) GetFile(ctx context.Context, remoteName, localDir string) (string, error) {
	src := filepath.Join(t.Dir, remoteName)
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(localDir, filepath.Base(remoteName))
	if err := store.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("folderremote: get %s: %w", remoteName, err)
	}
	return dst, nil
}

// SendFile copies localPath into Dir under remoteName.
func (t *Transport) SendFile(ctx context.Context, localPath, remoteName string) error {
	dst := filepath.Join(t.Dir, remoteName)
	if err := store.CopyFile(localPath, dst); err != nil {
		return fmt.Errorf("folderremote: send %s: %w", remoteName, err)
	}
	return nil
}
