// Package revision resolves the git revision a source tree was generated
// from, so artifacts can be traced back to a commit.
package revision

import (
	"github.com/go-git/go-git/v5"
)

// Lookup returns the short HEAD hash of the repository containing dir.
// Directories outside any git worktree return ok=false; that is not an
// error, artifacts simply carry no revision stamp.
func Lookup(dir string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	return head.Hash().String()[:8], true
}
