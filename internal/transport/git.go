package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Git reads the payload from one file at the tip of a branch. The request
// URL is the repository URL. The repository is kept as a bare shallow clone
// under the state directory and read through the object database, so no
// working tree is ever checked out.
type Git struct {
	branch   string
	file     string
	cloneDir string

	mu        sync.Mutex
	repo      *git.Repository
	repoURL   string
	revision  plumbing.Hash
	committed time.Time
}

// NewGit creates a Git transport reading file from branch. The clone lives
// in stateDir/config-repo.git and survives restarts.
func NewGit(branch, file, stateDir string) (*Git, error) {
	file = strings.TrimPrefix(path.Clean(filepath.ToSlash(file)), "/")
	if file == "" || file == "." {
		return nil, fmt.Errorf("git transport needs a file path inside the repository")
	}
	if branch == "" {
		branch = "main"
	}
	return &Git{
		branch:   branch,
		file:     file,
		cloneDir: filepath.Join(stateDir, "config-repo.git"),
	}, nil
}

// Request brings the clone of repoURL up to date and returns the file
// contents at the branch tip.
func (g *Git) Request(ctx context.Context, repoURL string, _ map[string]string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.update(ctx, repoURL); err != nil {
		return nil, err
	}

	tip, err := g.tip()
	if err != nil {
		return nil, err
	}
	commit, err := g.repo.CommitObject(tip)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", tip, err)
	}
	f, err := commit.File(g.file)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s not found at %s@%s", g.file, g.branch, tip)
		}
		return nil, fmt.Errorf("reading %s at %s: %w", g.file, tip, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", g.file, tip, err)
	}

	g.revision = tip
	g.committed = commit.Committer.When.UTC()
	return []byte(contents), nil
}

// Describe reports the branch, file and commit of the last successful request.
func (g *Git) Describe() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	info := map[string]any{}
	if g.revision.IsZero() {
		return info
	}
	info["branch"] = g.branch
	info["file"] = g.file
	info["revision"] = g.revision.String()
	info["committed_at"] = g.committed.Format(time.RFC3339)
	return info
}

// Close drops the repository handle. The clone stays on disk for the next
// process.
func (g *Git) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.repo = nil
	g.repoURL = ""
	return nil
}

// update fetches the branch into the clone, reopening an existing clone of
// the same repository or replacing one of a different repository.
func (g *Git) update(ctx context.Context, repoURL string) error {
	if g.repo != nil && g.repoURL == repoURL {
		return g.fetch(ctx)
	}

	if repo, err := git.PlainOpen(g.cloneDir); err == nil && originURL(repo) == repoURL {
		g.repo, g.repoURL = repo, repoURL
		return g.fetch(ctx)
	}

	return g.clone(ctx, repoURL)
}

func (g *Git) clone(ctx context.Context, repoURL string) error {
	if err := os.RemoveAll(g.cloneDir); err != nil {
		return fmt.Errorf("removing stale clone %s: %w", g.cloneDir, err)
	}
	g.repo, g.repoURL = nil, ""

	repo, err := git.PlainCloneContext(ctx, g.cloneDir, true, &git.CloneOptions{
		URL:           repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(g.branch),
		SingleBranch:  true,
		Depth:         1,
		Auth:          gitAuth(repoURL),
	})
	if err != nil {
		_ = os.RemoveAll(g.cloneDir)
		return fmt.Errorf("cloning %s: %w", repoURL, err)
	}
	g.repo, g.repoURL = repo, repoURL
	return nil
}

func (g *Git) fetch(ctx context.Context) error {
	refSpec := gitconfig.RefSpec(
		fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", g.branch, g.branch),
	)
	err := g.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Depth:      1,
		Auth:       gitAuth(g.repoURL),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s from %s: %w", g.branch, g.repoURL, err)
	}
	return nil
}

// tip resolves the fetched branch head. Fetches move the remote-tracking
// ref; a fresh clone also has the local branch.
func (g *Git) tip() (plumbing.Hash, error) {
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewRemoteReferenceName("origin", g.branch),
		plumbing.NewBranchReferenceName(g.branch),
	} {
		if ref, err := g.repo.Reference(name, true); err == nil {
			return ref.Hash(), nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("branch %s not found in %s", g.branch, g.repoURL)
}

func originURL(repo *git.Repository) string {
	remote, err := repo.Remote("origin")
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}
	return remote.Config().URLs[0]
}

// gitAuth returns HTTP basic auth using GITHUB_TOKEN for HTTPS GitHub URLs.
// Returns nil if the token is not set or the URL is not an HTTPS GitHub URL.
func gitAuth(repoURL string) gittransport.AuthMethod {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil
	}
	if !strings.HasPrefix(repoURL, "https://github.com/") {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}
}
