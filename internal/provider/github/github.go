// Package github implements the provider.Adapter interface for repositories
// hosted on github.com or a GitHub Enterprise Server instance.
package github

import (
	"context"
	"fmt"
	"time"

	gogithub "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/skaphos/mirrorkeeper/internal/errtax"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/provider"
)

// Adapter enumerates repositories for a GitHub org or user scope.
type Adapter struct {
	// Timeout bounds each page request. Defaults to 30s.
	Timeout time.Duration
}

// New returns a GitHub provider.Adapter.
func New() *Adapter {
	return &Adapter{Timeout: 30 * time.Second}
}

func (a *Adapter) Kind() model.ProviderKind { return model.ProviderGitHub }

func (a *Adapter) client(target model.Target, creds model.Credentials) (*gogithub.Client, error) {
	httpClient := provider.NewHTTPClient(a.timeout())
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token})
	oauthClient := oauth2.NewClient(ctx, ts)
	oauthClient.Timeout = a.timeout()

	client := gogithub.NewClient(oauthClient)
	if target.Host != "" && target.Host != "github.com" {
		var err error
		base := fmt.Sprintf("https://%s/api/v3/", target.Host)
		upload := fmt.Sprintf("https://%s/api/uploads/", target.Host)
		client, err = client.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("github: enterprise client: %w", err)
		}
	}
	return client, nil
}

func (a *Adapter) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 30 * time.Second
	}
	return a.Timeout
}

// ListRepos enumerates every repository owned by the target's single scope
// segment, which is either an organization or a user login.
func (a *Adapter) ListRepos(ctx context.Context, target model.Target, creds model.Credentials) ([]model.RemoteRepo, error) {
	if len(target.ScopeSegments) == 0 {
		return nil, fmt.Errorf("github: target %q has no scope segment (expected org or user login)", target.ID)
	}
	owner := target.ScopeSegments[0]
	client, err := a.client(target, creds)
	if err != nil {
		return nil, err
	}

	var out []model.RemoteRepo
	opts := &gogithub.RepositoryListByOrgOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		repos, resp, err := client.Repositories.ListByOrg(ctx, owner, opts)
		if err != nil {
			if isNotFound(err) {
				return listByUser(ctx, client, owner)
			}
			return nil, classifyGitHubError(err)
		}
		for _, r := range repos {
			out = append(out, toRemoteRepo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func listByUser(ctx context.Context, client *gogithub.Client, user string) ([]model.RemoteRepo, error) {
	var out []model.RemoteRepo
	opts := &gogithub.RepositoryListByUserOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		repos, resp, err := client.Repositories.ListByUser(ctx, user, opts)
		if err != nil {
			return nil, classifyGitHubError(err)
		}
		for _, r := range repos {
			out = append(out, toRemoteRepo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func toRemoteRepo(r *gogithub.Repository) model.RemoteRepo {
	repo := model.RemoteRepo{
		Name:          r.GetName(),
		CloneURL:      r.GetCloneURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Archived:      r.GetArchived(),
		Disabled:      r.GetDisabled(),
	}
	repo.RepoID = fmt.Sprintf("github.com/%s", r.GetFullName())
	return repo
}

// ValidateAuth confirms the token is accepted by calling the authenticated
// user endpoint, which requires no additional scope.
func (a *Adapter) ValidateAuth(ctx context.Context, target model.Target, creds model.Credentials) error {
	client, err := a.client(target, creds)
	if err != nil {
		return err
	}
	_, _, err = client.Users.Get(ctx, "")
	if err != nil {
		return classifyGitHubError(err)
	}
	return nil
}

// HealthCheck reports reachability, auth validity, and rate-limit state.
func (a *Adapter) HealthCheck(ctx context.Context, target model.Target, creds model.Credentials) provider.HealthReport {
	start := time.Now()
	client, err := a.client(target, creds)
	if err != nil {
		return provider.HealthReport{Error: err.Error()}
	}
	rl, _, err := client.RateLimit.Get(ctx)
	report := provider.HealthReport{Latency: time.Since(start)}
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Reachable = true
	report.AuthOK = true
	if core := rl.GetCore(); core != nil {
		report.RateLimitRemaining = core.Remaining
		report.RateLimitReset = core.Reset.Time
	}
	return report
}

// TokenScopes reads the X-OAuth-Scopes header GitHub returns on any
// authenticated request.
func (a *Adapter) TokenScopes(ctx context.Context, target model.Target, creds model.Credentials) ([]string, error) {
	client, err := a.client(target, creds)
	if err != nil {
		return nil, err
	}
	_, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, classifyGitHubError(err)
	}
	scopesHeader := resp.Header.Get("X-OAuth-Scopes")
	if scopesHeader == "" {
		return nil, nil
	}
	var scopes []string
	for _, s := range splitAndTrim(scopesHeader, ",") {
		if s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes, nil
}

func splitAndTrim(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || string(s[i]) == sep {
			out = append(out, trimSpace(s[start:i]))
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func isNotFound(err error) bool {
	if ghErr, ok := err.(*gogithub.ErrorResponse); ok {
		return ghErr.Response != nil && ghErr.Response.StatusCode == 404
	}
	return false
}

func classifyGitHubError(err error) error {
	if ghErr, ok := err.(*gogithub.ErrorResponse); ok && ghErr.Response != nil {
		switch {
		case ghErr.Response.StatusCode == 401 || ghErr.Response.StatusCode == 403:
			return fmt.Errorf("%w: %s", errtax.ErrAuthRejected, ghErr.Message)
		case ghErr.Response.StatusCode == 429:
			return fmt.Errorf("%w: %s", errtax.ErrRateLimited, ghErr.Message)
		case ghErr.Response.StatusCode >= 500:
			return fmt.Errorf("%w: %s", errtax.ErrTransientProvider, ghErr.Message)
		case ghErr.Response.StatusCode == 404:
			return fmt.Errorf("%w: %s", errtax.ErrPermanentProvider, ghErr.Message)
		}
	}
	if _, ok := err.(*gogithub.RateLimitError); ok {
		return fmt.Errorf("%w: %v", errtax.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", errtax.ErrTransientProvider, err)
}
