package git

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-git/go-git/v5"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// Open opens the repository containing path, walking up to find .git.
func Open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, gitError(err, "failed to open repository", path)
	}
	return repo, nil
}

// Revision returns the commit HEAD points at.
func Revision(path string) (string, error) {
	repo, err := Open(path)
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", gitError(err, "failed to resolve HEAD", path)
	}
	return ref.Hash().String(), nil
}

// InitSubmodule initialises and checks out the submodule name of the
// repository at path. depth limits the fetch; 0 fetches full history.
func InitSubmodule(ctx context.Context, path, name string, depth int) error {
	repo, err := Open(path)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return gitError(err, "failed to open worktree", path)
	}
	sub, err := wt.Submodule(name)
	if err != nil {
		if errors.Is(err, git.ErrSubmoduleNotFound) {
			return ferrors.NewError(ferrors.CategoryGit, "submodule not declared in .gitmodules").
				WithContext("path", path).
				WithContext("submodule", name).
				Build()
		}
		return gitError(err, "failed to read submodule", path)
	}

	slog.Info("Initializing submodule", logfields.Path(path), slog.String("submodule", name), slog.Int("depth", depth))
	err = sub.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		Depth:             depth,
		RecurseSubmodules: git.NoRecurseSubmodules,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ferrors.Canceled("submodule update", ctxErr)
		}
		return ferrors.WrapError(err, ferrors.CategoryGit, "failed to update submodule").
			Retryable().
			WithContext("path", path).
			WithContext("submodule", name).
			Build()
	}
	return nil
}

func gitError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryGit, msg).
		WithContext("path", path).
		Build()
}
