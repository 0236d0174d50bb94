// Package provider defines the adapter interface the sync engine uses to
// enumerate remote repository inventory, independent of which of the three
// supported hosts a target points at.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/skaphos/mirrorkeeper/internal/model"
)

// HealthReport is the structured result of a provider health/auth check.
type HealthReport struct {
	Reachable          bool          `json:"reachable"`
	AuthOK             bool          `json:"auth_ok"`
	RateLimitRemaining int           `json:"rate_limit_remaining"`
	RateLimitReset     time.Time     `json:"rate_limit_reset"`
	Latency            time.Duration `json:"latency"`
	Error              string        `json:"error,omitempty"`
}

// Adapter is the provider-agnostic contract each of the three supported
// hosts (Azure DevOps, GitHub, GitLab) implements.
type Adapter interface {
	// Kind identifies which provider this adapter serves.
	Kind() model.ProviderKind
	// ListRepos enumerates every repository within a target's scope,
	// paging through the provider's native pagination until exhausted.
	ListRepos(ctx context.Context, target model.Target, creds model.Credentials) ([]model.RemoteRepo, error)
	// ValidateAuth confirms the supplied credentials are accepted by the
	// provider without listing any repositories.
	ValidateAuth(ctx context.Context, target model.Target, creds model.Credentials) error
	// HealthCheck reports reachability, auth validity, and rate-limit state.
	HealthCheck(ctx context.Context, target model.Target, creds model.Credentials) HealthReport
	// TokenScopes reports the scopes/permissions the provider grants to the
	// current credentials, for "token validate" diagnostics.
	TokenScopes(ctx context.Context, target model.Target, creds model.Credentials) ([]string, error)
}

// NewHTTPClient builds the shared retryablehttp-backed client every provider
// adapter uses: bounded exponential backoff, retry on 429/5xx honoring
// Retry-After, and a sane default timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 4
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = timeout
	retryClient.CheckRetry = retryablehttp.DefaultRetryPolicy
	return retryClient.StandardClient()
}
