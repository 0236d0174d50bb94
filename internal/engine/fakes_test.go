package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/provider"
)

// fakeVCS is an in-memory stand-in for vcs.Adapter, modeling just enough git
// semantics (a remote URL, a set of local refs, a dirty flag) for the
// reconciliation state machine to exercise every branch without shelling out.
type fakeVCS struct {
	mu sync.Mutex

	// repos maps a local path to its simulated state.
	repos map[string]*fakeRepo

	cloneErr   map[string]error
	fetchErr   map[string]error
	ffErr      map[string]error
	notAncestor map[string]bool
}

type fakeRepo struct {
	originURL     string
	dirty         bool
	bare          bool
	headBranch    string
	headDetached  bool
	remoteDefault string
	localRev      string
	remoteRev     string
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{
		repos:       map[string]*fakeRepo{},
		cloneErr:    map[string]error{},
		fetchErr:    map[string]error{},
		ffErr:       map[string]error{},
		notAncestor: map[string]bool{},
	}
}

func (f *fakeVCS) Name() string { return "fake" }

func (f *fakeVCS) IsRepo(ctx context.Context, dir string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.repos[dir]
	return ok, nil
}

func (f *fakeVCS) IsBare(ctx context.Context, dir string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[dir]
	if !ok {
		return false, fmt.Errorf("no such repo: %s", dir)
	}
	return r.bare, nil
}

func (f *fakeVCS) Remotes(ctx context.Context, dir string) ([]model.Remote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[dir]
	if !ok {
		return nil, fmt.Errorf("no such repo: %s", dir)
	}
	if r.originURL == "" {
		return nil, nil
	}
	return []model.Remote{{Name: "origin", URL: r.originURL}}, nil
}

func (f *fakeVCS) Head(ctx context.Context, dir string) (model.Head, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[dir]
	if !ok {
		return model.Head{}, fmt.Errorf("no such repo: %s", dir)
	}
	return model.Head{Branch: r.headBranch, Detached: r.headDetached}, nil
}

func (f *fakeVCS) WorktreeStatus(ctx context.Context, dir string) (*model.Worktree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[dir]
	if !ok {
		return nil, fmt.Errorf("no such repo: %s", dir)
	}
	return &model.Worktree{Dirty: r.dirty}, nil
}

func (f *fakeVCS) TrackingStatus(ctx context.Context, dir string) (model.Tracking, error) {
	return model.Tracking{}, nil
}

func (f *fakeVCS) HasSubmodules(ctx context.Context, dir string) (bool, error) {
	return false, nil
}

func (f *fakeVCS) Fetch(ctx context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[dir]; err != nil {
		return err
	}
	return nil
}

func (f *fakeVCS) NormalizeURL(rawURL string) string {
	return strings.TrimSuffix(strings.TrimSuffix(rawURL, ".git"), "/")
}

func (f *fakeVCS) PrimaryRemote(remoteNames []string) string {
	for _, n := range remoteNames {
		if n == "origin" {
			return "origin"
		}
	}
	if len(remoteNames) > 0 {
		return remoteNames[0]
	}
	return ""
}

func (f *fakeVCS) Clone(ctx context.Context, url, final, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cloneErr[final]; err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(final, 0o755); err != nil {
		return err
	}
	f.repos[final] = &fakeRepo{originURL: url, headBranch: branch, remoteDefault: branch}
	return nil
}

func (f *fakeVCS) SetRemoteURL(ctx context.Context, dir, remote, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[dir]
	if !ok {
		return fmt.Errorf("no such repo: %s", dir)
	}
	r.originURL = url
	return nil
}

func (f *fakeVCS) RemoteDefaultBranch(ctx context.Context, dir, remote string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.repos[dir]
	if !ok {
		return "", fmt.Errorf("no such repo: %s", dir)
	}
	return r.remoteDefault, nil
}

func (f *fakeVCS) FastForwardRef(ctx context.Context, dir, localRef, remoteRef string) error {
	return f.fastForward(dir)
}

func (f *fakeVCS) FastForwardCheckedOutBranch(ctx context.Context, dir, remoteRef string) error {
	return f.fastForward(dir)
}

func (f *fakeVCS) fastForward(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ffErr[dir]; err != nil {
		return err
	}
	if f.notAncestor[dir] {
		return fmt.Errorf("fast-forward: local is not an ancestor of remote")
	}
	r := f.repos[dir]
	if r != nil {
		r.localRev = r.remoteRev
	}
	return nil
}

func (f *fakeVCS) CreateTrackingBranch(ctx context.Context, dir, localBranch, remoteRef, remote string) error {
	return nil
}

// fakeProvider is an in-memory provider.Adapter.
type fakeProvider struct {
	repos map[string][]model.RemoteRepo
	err   error
}

func (p *fakeProvider) Kind() model.ProviderKind { return model.ProviderGitHub }

func (p *fakeProvider) ListRepos(ctx context.Context, target model.Target, creds model.Credentials) ([]model.RemoteRepo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.repos[target.ID], nil
}

func (p *fakeProvider) ValidateAuth(ctx context.Context, target model.Target, creds model.Credentials) error {
	return nil
}

func (p *fakeProvider) HealthCheck(ctx context.Context, target model.Target, creds model.Credentials) provider.HealthReport {
	return provider.HealthReport{Reachable: true, AuthOK: true}
}

func (p *fakeProvider) TokenScopes(ctx context.Context, target model.Target, creds model.Credentials) ([]string, error) {
	return nil, nil
}
