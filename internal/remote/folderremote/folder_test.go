package folderremote

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSendThenGetRoundTrip(t *testing.T) {
	remoteDir := t.TempDir()
	tr := &Transport{Dir: remoteDir}
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "foo-1.0.tgz")
	if err := os.WriteFile(src, []byte("archive bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := tr.SendFile(context.Background(), src, "foo-1.0.tgz"); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	path, err := tr.GetFile(context.Background(), "foo-1.0.tgz", dest)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "archive bytes" {
		t.Errorf("got %q", got)
	}
}

func TestConnectRejectsMissingDir(t *testing.T) {
	tr := &Transport{Dir: filepath.Join(t.TempDir(), "does-not-exist")}
	if err := tr.Connect(context.Background()); err == nil {
		t.Errorf("expected connect to fail for a missing directory")
	}
}
