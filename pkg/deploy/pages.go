// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/datawire/dlib/dlog"
)

func init() {
	Register(pagesProvider{})
}

// pagesProvider publishes a directory of generated HTML to a GitHub Pages
// branch: it turns local_dir into a git repository, commits its contents, and
// force-pushes to the target branch with token auth.
type pagesProvider struct{}

func (pagesProvider) Name() string { return "pages" }

func (pagesProvider) Deploy(ctx context.Context, req Request) error {
	target := req.Target

	localDir := target.LocalDir
	if localDir == "" {
		localDir = "."
	}
	if !filepath.IsAbs(localDir) {
		localDir = filepath.Join(req.Dir, localDir)
	}
	slug := target.Repo
	if slug == "" {
		slug = req.Build.RepoSlug
	}
	if slug == "" {
		return errors.New("pages: no repo slug (set `repo:` or run with --repo)")
	}
	branch := target.TargetBranch
	if branch == "" {
		branch = "gh-pages"
	}
	token, err := target.GithubToken.Resolve(req.Build, req.Decrypter)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("pages: github_token resolved to an empty string")
	}

	if req.DryRun {
		dlog.Infof(ctx, "pages: would write %s and push %s to %s branch %s (skip_cleanup=%v)",
			filepath.Join(localDir, ".nojekyll"), localDir, slug, branch, target.SkipCleanup)
		return nil
	}

	// The marker file tells the static host to serve the directory as-is
	// instead of running it through Jekyll (which hides _-prefixed dirs,
	// such as Sphinx's _static).
	if err := os.WriteFile(filepath.Join(localDir, ".nojekyll"), nil, 0o666); err != nil {
		return err
	}

	repo, err := openPagesRepo(localDir, target.SkipCleanup)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return err
	}
	committer := &object.Signature{
		Name:  target.CommitterName,
		Email: target.CommitterEmail,
		When:  time.Now(),
	}
	if committer.Name == "" {
		committer.Name = "civet"
	}
	if committer.Email == "" {
		committer.Email = "deploy@civet.invalid"
	}
	message := fmt.Sprintf("Deploy %s to %s", slug, branch)
	if req.Build.Tag != "" {
		message += " for " + req.Build.Tag
	}
	if _, err := worktree.Commit(message, &git.CommitOptions{Author: committer}); err != nil {
		return err
	}

	head, err := repo.Head()
	if err != nil {
		return err
	}

	if err := repo.DeleteRemote("origin"); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://github.com/" + slug + ".git"},
	}); err != nil {
		return err
	}

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec("+" + head.Name().String() + ":refs/heads/" + branch),
		},
		Auth: &githttp.BasicAuth{
			// For token auth the username just has to be non-empty.
			Username: "x-access-token",
			Password: token,
		},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push to %s: %w", slug, err)
	}
	dlog.Infof(ctx, "pages: pushed %s to %s branch %s", localDir, slug, branch)
	return nil
}

// openPagesRepo makes localDir a git repository.  With skipCleanup the
// existing repository (and so the branch history) is kept; otherwise any
// existing history is discarded and a fresh single-commit repo is built.
func openPagesRepo(localDir string, skipCleanup bool) (*git.Repository, error) {
	if skipCleanup {
		repo, err := git.PlainOpen(localDir)
		if err == nil {
			return repo, nil
		}
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, err
		}
		return git.PlainInit(localDir, false)
	}
	if err := os.RemoveAll(filepath.Join(localDir, ".git")); err != nil {
		return nil, err
	}
	return git.PlainInit(localDir, false)
}
