// Command mirrorkeeper mirrors git repositories from GitHub, GitLab, and
// Azure DevOps into local clones, keeping them fast-forwarded without
// ever pushing, rebasing, or touching history.
package main

import "github.com/skaphos/mirrorkeeper/cmd/mirrorkeeper"

// execute is overridable in tests.
var execute = mirrorkeeper.Execute

func main() {
	execute()
}
