// Package model defines the core data types used throughout mirrorkeeper.
package model

import "time"

// ProviderKind identifies one of the closed set of supported remote hosts.
type ProviderKind string

const (
	ProviderAzureDevOps ProviderKind = "azure-devops"
	ProviderGitHub      ProviderKind = "github"
	ProviderGitLab      ProviderKind = "gitlab"
)

// Target identifies one unit of remote inventory to mirror: a provider, a
// host, and a scope (org/user/group[/subgroup...]/project path segments).
type Target struct {
	// ID is a stable identifier derived from (ProviderKind, Host, ScopeSegments).
	ID string `json:"id"`
	// ProviderKind selects the adapter used to enumerate this target.
	ProviderKind ProviderKind `json:"provider_kind"`
	// Host is the provider hostname, e.g. "dev.azure.com", "github.com".
	Host string `json:"host"`
	// ScopeSegments names the org/user/group[/subgroup...]/project path.
	ScopeSegments []string `json:"scope_segments"`
	// Root is the local filesystem directory mirrors for this target are rooted under.
	Root string `json:"root"`
	// Exclude holds doublestar glob patterns of repo names to skip.
	Exclude []string `json:"exclude,omitempty"`
	// MissingPolicy selects the action taken when a previously-seen repo
	// disappears from the remote listing (archive | remove | skip).
	MissingPolicy string `json:"missing_policy,omitempty"`
}

// ScopePath joins ScopeSegments with "/" for display and path mapping.
func (t Target) ScopePath() string {
	out := ""
	for i, seg := range t.ScopeSegments {
		if i > 0 {
			out += "/"
		}
		out += seg
	}
	return out
}

// RemoteRepo is a single repository discovered from a provider listing.
type RemoteRepo struct {
	// RepoID is the provider-stable repository identifier.
	RepoID string `json:"repo_id"`
	// Name is the repository's display/slug name.
	Name string `json:"name"`
	// CloneURL is the HTTPS clone URL; credentials are never embedded in it.
	CloneURL string `json:"clone_url"`
	// DefaultBranch is the branch the remote declares as default.
	DefaultBranch string `json:"default_branch"`
	// Archived reports whether the remote has archived this repository.
	Archived bool `json:"archived"`
	// Disabled reports whether the remote has disabled this repository.
	Disabled bool `json:"disabled"`
	// ProjectName carries the Azure DevOps project segment for org-wide
	// listings so on-disk paths keep {org}/{project}/{repo}. Empty otherwise.
	ProjectName string `json:"project_name,omitempty"`
}

// LocalRepoState is the state of a local mirror directory, derived fresh at
// reconciliation time. It is never persisted.
type LocalRepoState struct {
	Path             string
	Exists           bool
	IsGitRepo        bool
	IsClean          bool
	HeadBranch       string
	HeadDetached     bool
	OriginURL        string
	HasDefaultBranch bool
	DivergedFromHead bool
}

// RepoState is the Repo Worker's typed state-machine position.
type RepoState string

const (
	StateAbsent             RepoState = "absent"
	StatePresentClean       RepoState = "present_clean"
	StatePresentDirty       RepoState = "present_dirty"
	StateDiverged           RepoState = "diverged"
	StateOriginMismatch     RepoState = "origin_mismatch"
	StateMissingDefault     RepoState = "missing_default_branch"
	StateArchivedOrDisabled RepoState = "archived_or_disabled_skip"
	StateUpToDate           RepoState = "up_to_date"
	StateFastForwarded      RepoState = "fast_forwarded"
	StateCloned             RepoState = "cloned"
	StateFailed             RepoState = "failed"
)

// RepoOutcome is the per-repo result of one reconciliation pass.
type RepoOutcome struct {
	TargetID string    `json:"target_id"`
	RepoID   string    `json:"repo_id"`
	Path     string    `json:"path"`
	State    RepoState `json:"state"`
	Error    string    `json:"error,omitempty"`
	Renamed  bool      `json:"renamed,omitempty"`
	At       time.Time `json:"at"`
}

// OutcomeCounters aggregates per-run results for a target or a whole run.
type OutcomeCounters struct {
	UpToDate        int `json:"up_to_date"`
	Updated         int `json:"updated"`
	Cloned          int `json:"cloned"`
	SkippedDirty    int `json:"skipped_dirty"`
	SkippedDiverged int `json:"skipped_diverged"`
	MissingRemote   int `json:"missing_remote"`
	Failed          int `json:"failed"`
	Archived        int `json:"archived"`
	Removed         int `json:"removed"`
}

// Add folds a single repo outcome's state into the counters.
func (c *OutcomeCounters) Add(state RepoState) {
	switch state {
	case StateUpToDate:
		c.UpToDate++
	case StateFastForwarded:
		c.Updated++
	case StateCloned:
		c.Cloned++
	case StatePresentDirty:
		c.SkippedDirty++
	case StateDiverged:
		c.SkippedDiverged++
	case StateFailed:
		c.Failed++
	}
}

// SyncStatus is a runtime progress snapshot; it is not written to the cache.
type SyncStatus struct {
	CurrentTarget string    `json:"current_target"`
	CurrentRepo   string    `json:"current_repo"`
	Action        string    `json:"action"`
	Processed     int       `json:"processed"`
	Total         int       `json:"total"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Credentials holds resolved auth material for a single provider call. It is
// never persisted; the keyring resolves it fresh at call time.
type Credentials struct {
	Username string
	Token    string
}

// Remote represents a single git remote.
type Remote struct {
	// Name is the configured remote name (for example, "origin").
	Name string `json:"name" yaml:"name"`
	// URL is the remote fetch/push URL.
	URL string `json:"url" yaml:"url"`
}

// Head represents the current HEAD state of a repo.
type Head struct {
	// Branch is the current branch name when HEAD is attached.
	Branch string `json:"branch" yaml:"branch"`
	// Detached reports whether HEAD is detached.
	Detached bool `json:"detached" yaml:"detached"`
}

// Worktree represents the working tree status. Nil for bare repos.
type Worktree struct {
	// Dirty indicates whether the worktree has any local modifications.
	Dirty bool `json:"dirty" yaml:"dirty"`
	// Staged is the count of staged file changes.
	Staged int `json:"staged" yaml:"staged"`
	// Unstaged is the count of unstaged file changes.
	Unstaged int `json:"unstaged" yaml:"unstaged"`
	// Untracked is the count of untracked files.
	Untracked int `json:"untracked" yaml:"untracked"`
}

// TrackingStatus enumerates the possible upstream tracking states.
type TrackingStatus string

const (
	TrackingAhead    TrackingStatus = "ahead"
	TrackingBehind   TrackingStatus = "behind"
	TrackingDiverged TrackingStatus = "diverged"
	TrackingEqual    TrackingStatus = "equal"
	TrackingGone     TrackingStatus = "gone"
	TrackingNone     TrackingStatus = "none"
)

// Tracking represents the upstream tracking relationship for the current branch.
type Tracking struct {
	// Upstream is the tracked upstream ref (for example, "origin/main").
	Upstream string `json:"upstream" yaml:"upstream"`
	// Status is the high-level relationship between local and upstream branches.
	Status TrackingStatus `json:"status" yaml:"status"`
	// Ahead is the number of commits local is ahead of upstream. Nil when unknown/not applicable.
	Ahead *int `json:"ahead" yaml:"ahead"` // nil when gone or none
	// Behind is the number of commits local is behind upstream. Nil when unknown/not applicable.
	Behind *int `json:"behind" yaml:"behind"` // nil when gone or none
}

