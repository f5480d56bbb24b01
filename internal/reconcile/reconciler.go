// Package reconcile applies post mutations and brings the local views back in
// line with the backend by refetching, not by patching.
//
// After a delete the item is dropped from the loaded feed and the dashboard is
// refetched once. Create and update navigate home, so the next feed visit
// starts from a fresh initial load. Between the mutation and the refetch the
// views may briefly show stale data; nothing tries to hide that window.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
)

// DeletePrompt is the question put to the user before a delete.
const DeletePrompt = "Delete this post? This cannot be undone."

// HomePath is where the composer goes after a successful create or update.
const HomePath = "/"

// PostWriter performs post mutations on the backend.
type PostWriter interface {
	CreatePost(ctx context.Context, p models.Post) (models.Post, error)
	UpdatePost(ctx context.Context, id models.PostID, p models.Post) (models.Post, error)
	DeletePost(ctx context.Context, id models.PostID) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a func to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// AlwaysConfirm answers yes without asking, for non-interactive callers that
// already obtained consent.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) bool { return true })

// NeverConfirm declines every prompt. It is the default when no Confirmer is
// given, so a delete never happens without an answer from the user.
var NeverConfirm = ConfirmFunc(func(context.Context, string) bool { return false })

// Navigator moves the UI to another route.
type Navigator interface {
	Navigate(path string)
}

// NavigateFunc adapts a func to Navigator.
type NavigateFunc func(path string)

func (f NavigateFunc) Navigate(path string) { f(path) }

// FeedRemover drops an item from the loaded feed.
type FeedRemover interface {
	Remove(id models.PostID) bool
}

// Refresher refetches an aggregate view.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Deps are the collaborators of a Reconciler. Feed and Dashboard may be nil
// when no such view is mounted.
type Deps struct {
	Writer    PostWriter
	Confirmer Confirmer
	Navigator Navigator
	Feed      FeedRemover
	Dashboard Refresher
	Notifier  notify.Notifier
	Logger    *slog.Logger
	// OnCreated runs after a successful create, before navigating home.
	OnCreated func(models.Post)
}

// Reconciler runs mutations against the backend.
type Reconciler struct {
	d Deps
}

func New(d Deps) *Reconciler {
	if d.Confirmer == nil {
		d.Confirmer = NeverConfirm
	}
	if d.Navigator == nil {
		d.Navigator = NavigateFunc(func(string) {})
	}
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Reconciler{d: d}
}

// Delete asks for confirmation and deletes the post. It reports whether the
// post was deleted; a declined confirmation is not an error.
func (r *Reconciler) Delete(ctx context.Context, id models.PostID) (bool, error) {
	if !r.d.Confirmer.Confirm(ctx, DeletePrompt) {
		r.d.Logger.Debug("reconcile: delete declined", slog.String("post", id.String()))
		return false, nil
	}
	if err := r.d.Writer.DeletePost(ctx, id); err != nil {
		r.d.Logger.Warn("reconcile: delete failed", slog.String("post", id.String()), slog.String("error", err.Error()))
		notify.Error(r.d.Notifier, err)
		return false, fmt.Errorf("reconcile: delete %s: %w", id, err)
	}

	if r.d.Feed != nil {
		r.d.Feed.Remove(id)
	}
	r.d.Notifier.Notify(notify.LevelSuccess, "post deleted")
	r.d.Logger.Info("reconcile: post deleted", slog.String("post", id.String()))

	if r.d.Dashboard != nil {
		if err := r.d.Dashboard.Refresh(ctx); err != nil {
			// The delete itself succeeded.
			r.d.Logger.Warn("reconcile: dashboard refresh failed", slog.String("error", err.Error()))
			notify.Error(r.d.Notifier, err)
		}
	}
	return true, nil
}

// Create publishes draft with status and navigates home.
func (r *Reconciler) Create(ctx context.Context, draft models.Draft, status string) (models.Post, error) {
	if err := apperr.Validation(draft.Validate()); err != nil {
		notify.Error(r.d.Notifier, err)
		return models.Post{}, fmt.Errorf("reconcile: create: %w", err)
	}
	created, err := r.d.Writer.CreatePost(ctx, models.PostFromDraft(draft, status))
	if err != nil {
		r.d.Logger.Warn("reconcile: create failed", slog.String("error", err.Error()))
		notify.Error(r.d.Notifier, err)
		return models.Post{}, fmt.Errorf("reconcile: create: %w", err)
	}
	r.d.Logger.Info("reconcile: post created", slog.String("post", created.ID.String()))
	if r.d.OnCreated != nil {
		r.d.OnCreated(created)
	}
	r.d.Navigator.Navigate(HomePath)
	return created, nil
}

// Update replaces the title and content of post id and navigates home.
func (r *Reconciler) Update(ctx context.Context, id models.PostID, draft models.Draft, status string) (models.Post, error) {
	if err := apperr.Validation(draft.Validate()); err != nil {
		notify.Error(r.d.Notifier, err)
		return models.Post{}, fmt.Errorf("reconcile: update %s: %w", id, err)
	}
	p := models.PostFromDraft(draft, status)
	p.ID = id
	updated, err := r.d.Writer.UpdatePost(ctx, id, p)
	if err != nil {
		r.d.Logger.Warn("reconcile: update failed", slog.String("post", id.String()), slog.String("error", err.Error()))
		notify.Error(r.d.Notifier, err)
		return models.Post{}, fmt.Errorf("reconcile: update %s: %w", id, err)
	}
	r.d.Notifier.Notify(notify.LevelSuccess, "post updated")
	r.d.Logger.Info("reconcile: post updated", slog.String("post", id.String()))
	r.d.Navigator.Navigate(HomePath)
	return updated, nil
}
