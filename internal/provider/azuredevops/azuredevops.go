// Package azuredevops implements the provider.Adapter interface for
// repositories hosted in an Azure DevOps organization, enumerated across
// every project in that organization (or a single project, if the target
// scope names one).
package azuredevops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"

	"github.com/skaphos/mirrorkeeper/internal/errtax"
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/provider"
)

// Adapter enumerates repositories for an Azure DevOps organization or
// organization/project scope.
type Adapter struct {
	Timeout time.Duration
}

// New returns an Azure DevOps provider.Adapter.
func New() *Adapter {
	return &Adapter{Timeout: 30 * time.Second}
}

func (a *Adapter) Kind() model.ProviderKind { return model.ProviderAzureDevOps }

func (a *Adapter) connection(target model.Target, creds model.Credentials) *azuredevops.Connection {
	host := target.Host
	if host == "" {
		host = "dev.azure.com"
	}
	orgURL := fmt.Sprintf("https://%s/%s", host, strings.Join(target.ScopeSegments[:min(1, len(target.ScopeSegments))], "/"))
	return azuredevops.NewPatConnection(orgURL, creds.Token)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ListRepos enumerates repositories across every project in the
// organization, or within a single project when the target scope names one
// as a second segment (organization/project).
func (a *Adapter) ListRepos(ctx context.Context, target model.Target, creds model.Credentials) ([]model.RemoteRepo, error) {
	if len(target.ScopeSegments) == 0 {
		return nil, fmt.Errorf("azuredevops: target %q has no organization scope segment", target.ID)
	}
	conn := a.connection(target, creds)
	gitClient, err := git.NewClient(ctx, conn)
	if err != nil {
		return nil, classifyADOError(err)
	}

	var projects []string
	if len(target.ScopeSegments) > 1 {
		projects = []string{target.ScopeSegments[1]}
	} else {
		coreClient, err := core.NewClient(ctx, conn)
		if err != nil {
			return nil, classifyADOError(err)
		}
		projects, err = listProjectNames(ctx, coreClient)
		if err != nil {
			return nil, err
		}
	}

	var out []model.RemoteRepo
	for _, projectName := range projects {
		project := projectName
		repos, err := gitClient.GetRepositories(ctx, git.GetRepositoriesArgs{Project: &project})
		if err != nil {
			return nil, classifyADOError(err)
		}
		if repos == nil {
			continue
		}
		for _, r := range *repos {
			out = append(out, toRemoteRepo(r, project))
		}
	}
	return out, nil
}

func listProjectNames(ctx context.Context, coreClient core.Client) ([]string, error) {
	var names []string
	var continuationToken string
	for {
		args := core.GetProjectsArgs{}
		if continuationToken != "" {
			args.ContinuationToken = &continuationToken
		}
		resp, err := coreClient.GetProjects(ctx, args)
		if err != nil {
			return nil, classifyADOError(err)
		}
		if resp == nil {
			break
		}
		for _, p := range resp.Value {
			if p.Name != nil {
				names = append(names, *p.Name)
			}
		}
		if resp.ContinuationToken == "" {
			break
		}
		continuationToken = resp.ContinuationToken
	}
	return names, nil
}

func toRemoteRepo(r git.GitRepository, project string) model.RemoteRepo {
	repo := model.RemoteRepo{ProjectName: project}
	if r.Name != nil {
		repo.Name = *r.Name
	}
	if r.RemoteUrl != nil {
		repo.CloneURL = *r.RemoteUrl
	}
	if r.DefaultBranch != nil {
		repo.DefaultBranch = strings.TrimPrefix(*r.DefaultBranch, "refs/heads/")
	}
	if r.IsDisabled != nil {
		repo.Disabled = *r.IsDisabled
	}
	if r.Id != nil {
		repo.RepoID = fmt.Sprintf("dev.azure.com/%s/%s", project, r.Id.String())
	}
	return repo
}

// ValidateAuth confirms the PAT is accepted by listing projects with a
// minimal page size.
func (a *Adapter) ValidateAuth(ctx context.Context, target model.Target, creds model.Credentials) error {
	conn := a.connection(target, creds)
	coreClient, err := core.NewClient(ctx, conn)
	if err != nil {
		return classifyADOError(err)
	}
	top := 1
	_, err = coreClient.GetProjects(ctx, core.GetProjectsArgs{Top: &top})
	if err != nil {
		return classifyADOError(err)
	}
	return nil
}

// HealthCheck reports reachability and auth validity. Azure DevOps does not
// expose a stable rate-limit-remaining header across all endpoints, so
// those fields are left zero-valued.
func (a *Adapter) HealthCheck(ctx context.Context, target model.Target, creds model.Credentials) provider.HealthReport {
	start := time.Now()
	err := a.ValidateAuth(ctx, target, creds)
	report := provider.HealthReport{Latency: time.Since(start)}
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Reachable = true
	report.AuthOK = true
	return report
}

// TokenScopes is not introspectable for Azure DevOps PATs via the REST API;
// scopes are chosen at PAT creation time and reported back to the operator
// by the "token guide" CLI verb instead.
func (a *Adapter) TokenScopes(ctx context.Context, target model.Target, creds model.Credentials) ([]string, error) {
	return nil, nil
}

func classifyADOError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "403"):
		return fmt.Errorf("%w: %v", errtax.ErrAuthRejected, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %v", errtax.ErrRateLimited, err)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %v", errtax.ErrPermanentProvider, err)
	default:
		return fmt.Errorf("%w: %v", errtax.ErrTransientProvider, err)
	}
}
