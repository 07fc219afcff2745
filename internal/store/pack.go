package store

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// Pack produces a gzipped tar of dep's package directory at
// "<dest>/<dirname>.tgz". The archive's top-level entry is the package
// directory itself, so extracting it at dest reproduces "<dest>/<dirname>".
func Pack(dep Dependency, dest string) (string, error) {
	dirName := filepath.Base(dep.BasePath)
	fn := filepath.Join(dest, dirName+".tgz")
	f, err := os.Create(fn)
	if err != nil {
		return "", fmt.Errorf("store: pack: %w", err)
	}
	defer f.Close()
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	trim := filepath.Clean(filepath.Dir(dep.BasePath)) + string(filepath.Separator)
	err = filepath.Walk(dep.BasePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(path, trim)
		if info.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Name:     name + "/",
				Typeflag: tar.TypeDir,
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			})
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("store: pack: %s is not a regular file", path)
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:    name,
			Size:    info.Size(),
			Mode:    int64(info.Mode().Perm()),
			ModTime: info.ModTime(),
		}); err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
	if err != nil {
		os.Remove(fn)
		return "", fmt.Errorf("store: pack: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("store: pack: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("store: pack: %w", err)
	}
	return fn, nil
}

// Extract unpacks a .tgz archive produced by Pack into destDir. The
// archive's own top-level entry supplies the package directory name, and
// the returned path is "<destDir>/<that name>".
func Extract(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("store: extract: %w", err)
	}
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("store: extract: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	var topDir string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("store: extract: %w", err)
		}
		name, err := sanitizeArchiveName(hdr.Name)
		if err != nil {
			return "", fmt.Errorf("store: extract: %w", err)
		}
		if topDir == "" {
			topDir = strings.SplitN(name, "/", 2)[0]
		}
		target := filepath.Join(destDir, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0700); err != nil {
				return "", fmt.Errorf("store: extract: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return "", fmt.Errorf("store: extract: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)|0600)
			if err != nil {
				return "", fmt.Errorf("store: extract: %w", err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return "", fmt.Errorf("store: extract: %w", err)
			}
			if err := out.Close(); err != nil {
				return "", fmt.Errorf("store: extract: %w", err)
			}
		default:
			// ignore symlinks/other entry types for now
		}
	}
	if topDir == "" {
		return "", fmt.Errorf("store: extract: empty archive")
	}
	return filepath.Join(destDir, topDir), nil
}

// sanitizeArchiveName rejects archive entries that escape destDir via ".."
// components or an absolute path, per the requirement that remote- or
// archive-provided paths must never be trusted verbatim.
func sanitizeArchiveName(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("unsafe archive entry %q", name)
	}
	return clean, nil
}
