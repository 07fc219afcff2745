package system

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edmhq/edm/identity"
)

func TestOpenMaterializesLayout(t *testing.T) {
	base := t.TempDir()
	s, err := Open(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{s.DataPath, s.TempPath} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("expected %s to be materialized", dir)
		}
	}
	if _, err := os.Stat(s.ConfigPath); err != nil {
		t.Errorf("expected config.ini to be written: %v", err)
	}
}

func TestAddRemoteSkipsUnknownKind(t *testing.T) {
	base := t.TempDir()
	raw := `{"remotes":[{"name":"weird","kind":"bogus"},{"name":"local","kind":"folder","address":"` + filepath.Join(base, "remote") + `"}]}`
	if err := os.MkdirAll(base, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "config.ini"), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(base, "remote"), 0755); err != nil {
		t.Fatal(err)
	}

	s, err := Open(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Remotes()) != 1 {
		t.Fatalf("expected the unknown-kind remote to be skipped, got %d remotes", len(s.Remotes()))
	}
}

func TestAddRemotePersistsAndSetsDefault(t *testing.T) {
	base := t.TempDir()
	s, err := Open(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}
	remoteDir := filepath.Join(base, "remote-store")
	if err := os.MkdirAll(remoteDir, 0755); err != nil {
		t.Fatal(err)
	}
	err = s.AddRemote(context.Background(), RemoteConfig{
		Name: "local", Kind: "folder", Address: remoteDir, Default: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Default() == nil {
		t.Fatalf("expected a default remote to be set")
	}

	data, err := os.ReadFile(s.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc configDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Remotes) != 1 || doc.Remotes[0].Name != "local" {
		t.Errorf("persisted config = %+v", doc)
	}
}

func TestAddToolsetAutofillsHostWhenUnset(t *testing.T) {
	base := t.TempDir()
	s, err := Open(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddToolset(context.Background(), Toolset{Name: "default", CompilerPath: "/usr/bin/cc"}); err != nil {
		t.Fatal(err)
	}
	toolsets := s.Toolsets()
	if len(toolsets) != 1 || !toolsets[0].Autofill || toolsets[0].OS == "" {
		t.Errorf("expected autofilled toolset, got %+v", toolsets)
	}

	data, err := os.ReadFile(s.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc configDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Toolsets) != 1 {
		t.Fatalf("persisted config = %+v", doc)
	}
	if doc.Toolsets[0].OS != "" || doc.Toolsets[0].Arch != "" {
		t.Errorf("expected serialization to omit auto-filled os/arch, got %+v", doc.Toolsets[0])
	}
}

func TestAddToolsetExplicitOSArchPersisted(t *testing.T) {
	base := t.TempDir()
	s, err := Open(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddToolset(context.Background(), Toolset{
		Name: "armhf", CompilerPath: "/usr/bin/arm-linux-gnueabihf-gcc", OS: "linux", Arch: "armv7",
	}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(s.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc configDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Toolsets) != 1 || doc.Toolsets[0].OS != "linux" || doc.Toolsets[0].Arch != "armv7" {
		t.Errorf("expected an explicit toolset's os/arch to survive serialization, got %+v", doc.Toolsets)
	}
}

func TestClearTmpEmptiesDirectory(t *testing.T) {
	base := t.TempDir()
	s, err := Open(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.TempPath, "scratch.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearTmp(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(s.TempPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected tmp to be emptied, got %v", entries)
	}
}

func TestImportFolderInsertsAndReloadsStore(t *testing.T) {
	base := t.TempDir()
	s, err := Open(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	p := identity.New("foo", "1.0", identity.Linux, identity.X86_64, identity.Shared, identity.GNU, "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	f, err := os.Create(filepath.Join(src, "edp.info"))
	if err != nil {
		t.Fatal(err)
	}
	if err := identity.WriteSidecar(f, p); err != nil {
		t.Fatal(err)
	}
	f.Close()

	dep, err := s.ImportFolder(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if dep.Properties.Hash() != p.Hash() {
		t.Errorf("imported identity mismatch")
	}
	if len(s.Store.All()) != 1 {
		t.Errorf("expected the store to reload after import, got %d deps", len(s.Store.All()))
	}
}
