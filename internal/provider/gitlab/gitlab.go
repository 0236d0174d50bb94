// Package gitlab implements the provider.Adapter interface for repositories
// hosted on gitlab.com or a self-managed GitLab instance, addressed by
// group (including descendant subgroups).
package gitlab

import (
	"context"
	"fmt"
	"time"

	gogitlab "github.com/xanzy/go-gitlab"

	"github.com/skaphos/mirrorkeeper/internal/errtax"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/provider"
)

// Adapter enumerates projects for a GitLab group scope.
type Adapter struct {
	Timeout time.Duration
}

// New returns a GitLab provider.Adapter.
func New() *Adapter {
	return &Adapter{Timeout: 30 * time.Second}
}

func (a *Adapter) Kind() model.ProviderKind { return model.ProviderGitLab }

func (a *Adapter) client(target model.Target, creds model.Credentials) (*gogitlab.Client, error) {
	httpClient := provider.NewHTTPClient(a.timeout())
	opts := []gogitlab.ClientOptionFunc{gogitlab.WithHTTPClient(httpClient)}
	if target.Host != "" && target.Host != "gitlab.com" {
		opts = append(opts, gogitlab.WithBaseURL(fmt.Sprintf("https://%s/api/v4", target.Host)))
	}
	client, err := gogitlab.NewClient(creds.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("gitlab: new client: %w", err)
	}
	return client, nil
}

func (a *Adapter) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 30 * time.Second
	}
	return a.Timeout
}

// ListRepos enumerates every project within the group named by the target's
// scope segments, including descendant subgroups.
func (a *Adapter) ListRepos(ctx context.Context, target model.Target, creds model.Credentials) ([]model.RemoteRepo, error) {
	if len(target.ScopeSegments) == 0 {
		return nil, fmt.Errorf("gitlab: target %q has no scope segment (expected a group path)", target.ID)
	}
	client, err := a.client(target, creds)
	if err != nil {
		return nil, err
	}
	groupPath := target.ScopePath()

	var out []model.RemoteRepo
	withSubgroups := true
	opt := &gogitlab.ListGroupProjectsOptions{
		ListOptions:      gogitlab.ListOptions{PerPage: 100},
		IncludeSubGroups: &withSubgroups,
	}
	for {
		projects, resp, err := client.Groups.ListGroupProjects(groupPath, opt, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, classifyGitLabError(err)
		}
		for _, p := range projects {
			out = append(out, toRemoteRepo(p))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

func toRemoteRepo(p *gogitlab.Project) model.RemoteRepo {
	return model.RemoteRepo{
		RepoID:        fmt.Sprintf("gitlab.com/%s", p.PathWithNamespace),
		Name:          p.Path,
		CloneURL:      p.HTTPURLToRepo,
		DefaultBranch: p.DefaultBranch,
		Archived:      p.Archived,
	}
}

// ValidateAuth confirms the token is accepted by fetching the current user.
func (a *Adapter) ValidateAuth(ctx context.Context, target model.Target, creds model.Credentials) error {
	client, err := a.client(target, creds)
	if err != nil {
		return err
	}
	_, _, err = client.Users.CurrentUser(gogitlab.WithContext(ctx))
	if err != nil {
		return classifyGitLabError(err)
	}
	return nil
}

// HealthCheck reports reachability and auth validity. GitLab's REST API
// surfaces rate-limit headers per-request rather than via a dedicated
// endpoint, so remaining/reset are left zero-valued here.
func (a *Adapter) HealthCheck(ctx context.Context, target model.Target, creds model.Credentials) provider.HealthReport {
	start := time.Now()
	client, err := a.client(target, creds)
	if err != nil {
		return provider.HealthReport{Error: err.Error()}
	}
	_, resp, err := client.Users.CurrentUser(gogitlab.WithContext(ctx))
	report := provider.HealthReport{Latency: time.Since(start)}
	if err != nil {
		report.Error = err.Error()
		report.Reachable = resp != nil
		return report
	}
	report.Reachable = true
	report.AuthOK = true
	return report
}

// TokenScopes is not directly exposed by GitLab's REST API for personal
// access tokens without an additional elevated call; it reports an empty
// list rather than guessing.
func (a *Adapter) TokenScopes(ctx context.Context, target model.Target, creds model.Credentials) ([]string, error) {
	return nil, nil
}

func classifyGitLabError(err error) error {
	if errResp, ok := err.(*gogitlab.ErrorResponse); ok && errResp.Response != nil {
		switch {
		case errResp.Response.StatusCode == 401 || errResp.Response.StatusCode == 403:
			return fmt.Errorf("%w: %v", errtax.ErrAuthRejected, err)
		case errResp.Response.StatusCode == 429:
			return fmt.Errorf("%w: %v", errtax.ErrRateLimited, err)
		case errResp.Response.StatusCode >= 500:
			return fmt.Errorf("%w: %v", errtax.ErrTransientProvider, err)
		case errResp.Response.StatusCode == 404:
			return fmt.Errorf("%w: %v", errtax.ErrPermanentProvider, err)
		}
	}
	return fmt.Errorf("%w: %v", errtax.ErrTransientProvider, err)
}
