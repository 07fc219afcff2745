package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edmhq/edm/identity"
)

func writeRecipeTree(t *testing.T, root string, p identity.Properties, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, p.DirName())
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, "edp.info"))
	if err != nil {
		t.Fatal(err)
	}
	if err := identity.WriteSidecar(f, p); err != nil {
		t.Fatal(err)
	}
	f.Close()
	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func fooProps() identity.Properties {
	return identity.New("foo", "1.0", identity.Linux, identity.X86_64, identity.Shared, identity.GNU, "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestLoadQueryInvariant(t *testing.T) {
	root := t.TempDir()
	p := fooProps()
	writeRecipeTree(t, root, p, map[string]string{"include/foo.h": "// foo"})

	s := New(root)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := s.Query(identity.New("foo", "*", "", "", "", "", "", time.Time{}))
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Properties.Hash() != p.Hash() {
		t.Errorf("hash mismatch")
	}
}

func TestLoadSkipsOrphanedDirectory(t *testing.T) {
	root := t.TempDir()
	p := fooProps()
	writeRecipeTree(t, root, p, nil)
	if err := os.MkdirAll(filepath.Join(root, "orphan"), 0755); err != nil {
		t.Fatal(err)
	}

	s := New(root)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(s.All()) != 1 {
		t.Fatalf("orphan directory should have been skipped, got %d deps", len(s.All()))
	}
}

func TestInsertAtomicReplace(t *testing.T) {
	root := t.TempDir()
	p := fooProps()
	src := t.TempDir()
	f, err := os.Create(filepath.Join(src, "edp.info"))
	if err != nil {
		t.Fatal(err)
	}
	identity.WriteSidecar(f, p)
	f.Close()
	os.WriteFile(filepath.Join(src, "include", "foo.h"), nil, 0644)
	if err := os.MkdirAll(filepath.Join(src, "include"), 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(src, "include", "foo.h"), []byte("v1"), 0644)

	s := New(root)
	dep, err := s.Insert(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, p.DirName())
	if dep.BasePath != want {
		t.Errorf("BasePath = %q, want %q", dep.BasePath, want)
	}
	sidecarBytes, err := os.ReadFile(filepath.Join(want, "edp.info"))
	if err != nil {
		t.Fatal(err)
	}
	srcSidecar, _ := os.ReadFile(filepath.Join(src, "edp.info"))
	if string(sidecarBytes) != string(srcSidecar) {
		t.Errorf("imported edp.info does not equal source edp.info bytewise")
	}

	if got := s.Query(identity.New("foo", "1.0", "", "", "", "", "", time.Time{})); len(got) != 1 {
		t.Fatalf("expected one match after insert, got %d", len(got))
	}

	if err := os.WriteFile(filepath.Join(src, "include", "foo.h"), []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	header, err := os.ReadFile(filepath.Join(want, "include", "foo.h"))
	if err != nil {
		t.Fatal(err)
	}
	if string(header) != "v2" {
		t.Errorf("re-insert should replace the existing tree, got header %q", header)
	}
	if got := s.Query(identity.New("foo", "1.0", "", "", "", "", "", time.Time{})); len(got) != 1 {
		t.Fatalf("expected one match after re-insert, got %d", len(got))
	}
}

func TestDeleteRemovesDirectoryAndRecord(t *testing.T) {
	root := t.TempDir()
	p := fooProps()
	writeRecipeTree(t, root, p, nil)
	s := New(root)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	removed, err := s.Delete(identity.New("foo", "*", "", "", "", "", "", time.Time{}))
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(removed))
	}
	if _, err := os.Stat(filepath.Join(root, p.DirName())); !os.IsNotExist(err) {
		t.Errorf("directory should have been removed from disk")
	}
	if len(s.All()) != 0 {
		t.Errorf("record should have been dropped from memory")
	}
}

func TestPackExtractRoundTrip(t *testing.T) {
	root := t.TempDir()
	p := fooProps()
	writeRecipeTree(t, root, p, map[string]string{"include/foo.h": "// foo header"})

	s := New(root)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	deps := s.All()
	if len(deps) != 1 {
		t.Fatalf("want 1 dep, got %d", len(deps))
	}

	destDir := t.TempDir()
	archive, err := Pack(deps[0], destDir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(archive, p.DirName()+".tgz") {
		t.Errorf("archive name = %q", archive)
	}

	extractRoot := t.TempDir()
	extracted, err := Extract(archive, extractRoot)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(extracted, "edp.info"))
	if err != nil {
		t.Fatal(err)
	}
	want, err := os.ReadFile(filepath.Join(deps[0].BasePath, "edp.info"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Errorf("extracted edp.info does not match original")
	}
}

func TestExtractRejectsPathEscape(t *testing.T) {
	if _, err := sanitizeArchiveName("../../etc/passwd"); err == nil {
		t.Errorf("expected an error for a path-escaping archive entry")
	}
	if _, err := sanitizeArchiveName("/etc/passwd"); err == nil {
		t.Errorf("expected an error for an absolute archive entry")
	}
}

func TestPrune(t *testing.T) {
	root := t.TempDir()
	old := identity.New("foo", "1.0", identity.Linux, identity.X86_64, identity.Shared, identity.GNU, "",
		time.Now().Add(-72*time.Hour))
	fresh := identity.New("bar", "1.0", identity.Linux, identity.X86_64, identity.Shared, identity.GNU, "",
		time.Now())
	writeRecipeTree(t, root, old, nil)
	writeRecipeTree(t, root, fresh, nil)

	s := New(root)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	removed, err := s.Prune(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0].Name != "foo" {
		t.Fatalf("expected foo to be pruned, got %v", removed)
	}
	if len(s.All()) != 1 {
		t.Errorf("expected bar to remain")
	}
}
