package mirrorkeeper

import (
	"github.com/skaphos/mirrorkeeper/internal/model"
	"github.com/skaphos/mirrorkeeper/internal/provider"
	"github.com/skaphos/mirrorkeeper/internal/provider/azuredevops"
	"github.com/skaphos/mirrorkeeper/internal/provider/github"
	"github.com/skaphos/mirrorkeeper/internal/provider/gitlab"
)

// allProviders builds the closed set of provider adapters the engine and
// the token/health commands dispatch to by kind.
func allProviders() map[model.ProviderKind]provider.Adapter {
	return map[model.ProviderKind]provider.Adapter{
		model.ProviderGitHub:      github.New(),
		model.ProviderGitLab:      gitlab.New(),
		model.ProviderAzureDevOps: azuredevops.New(),
	}
}
