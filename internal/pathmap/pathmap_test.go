package pathmap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/pathmap"
)

func TestSanitizeRepoName(t *testing.T) {
	cases := map[string]string{
		"Widgets API":  "Widgets-API",
		"..hidden":     "hidden",
		"con":          "con-repo",
		"":             "repo",
		"normal-name1": "normal-name1",
	}
	for in, want := range cases {
		if got := pathmap.SanitizeRepoName(in); got != want {
			t.Errorf("SanitizeRepoName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRepoPathLayout(t *testing.T) {
	target := model.Target{
		Root:          "/mirrors",
		ProviderKind:  model.ProviderAzureDevOps,
		ScopeSegments: []string{"contoso"},
	}
	repo := model.RemoteRepo{Name: "Widgets API", ProjectName: "Platform"}
	got := pathmap.RepoPath(target, repo)
	want := filepath.Join("/mirrors", "azure-devops", "contoso", "Platform", "Widgets-API")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestArchivePathIncludesSuffix(t *testing.T) {
	target := model.Target{Root: "/mirrors", ProviderKind: model.ProviderGitHub, ScopeSegments: []string{"acme"}}
	repo := model.RemoteRepo{Name: "widgets"}
	got := pathmap.ArchivePath(target, repo, "20260101T000000Z", "2")
	want := filepath.Join("/mirrors", "_archive", "github", "acme", "widgets-20260101T000000Z-2")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMoveCrossDeviceFallback(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	src := filepath.Join(srcRoot, "repo")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "file.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dstRoot, "nested", "repo")
	if err := pathmap.Move(src, dst); err != nil {
		t.Fatalf("move: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dst, "sub", "file.txt"))
	if err != nil || string(data) != "hi" {
		t.Fatalf("unexpected content: %v %q", err, data)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source to be removed, stat err: %v", err)
	}
}
