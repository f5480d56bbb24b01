package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/composer"
	"github.com/starford/scribe/internal/feed"
	"github.com/starford/scribe/internal/markdown"
	"github.com/starford/scribe/internal/models"
	"github.com/starford/scribe/internal/notify"
	"github.com/starford/scribe/internal/reconcile"
	"github.com/starford/scribe/internal/search"
)

// ErrNoDraft is returned when a command needs a saved draft and there is none.
var ErrNoDraft = errors.New("no draft saved")

// printNotifier writes notices as lines, for one-shot commands.
type printNotifier struct {
	w io.Writer
}

func (p printNotifier) Notify(level notify.Level, msg string) {
	fmt.Fprintf(p.w, "[%s] %s\n", level, msg)
}

// withCore runs fn against a freshly built core. Logs go to stderr so
// command output stays clean.
func withCore(ctx context.Context, opts []Option, fn func(app *application, c *core) error) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := newLogger(app.config, app.logs)

	c, err := newCore(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if app.config.API.Token == "" {
		if err := c.session.Init(ctx); err != nil {
			logger.Warn("session restore failed", slog.String("error", err.Error()))
		}
	}
	return fn(app, c)
}

func printPosts(w io.Writer, posts []models.PostSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPUBLISHED\tTITLE")
	for _, p := range posts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.PublishedAt, p.Title)
	}
	return tw.Flush()
}

// ListFeed prints up to pages feed pages, newest first. pages <= 0 loads
// everything.
func ListFeed(ctx context.Context, pages int, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		cur := feed.NewCursor(c.client,
			feed.WithPageSize(c.cfg.Feed.PageSize),
			feed.WithFetchTimeout(c.cfg.Feed.FetchTimeout),
			feed.WithNotifier(printNotifier{os.Stderr}),
			feed.WithLogger(c.logger))
		defer cur.Close()

		if err := cur.LoadAll(ctx, pages); err != nil {
			return err
		}
		return printPosts(app.out, cur.Items())
	})
}

// SearchPosts prints the backend's results for query.
func SearchPosts(ctx context.Context, query string, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		o := search.NewOverlay(c.client,
			search.WithPageSize(c.cfg.Feed.SearchPageSize),
			search.WithNotifier(printNotifier{os.Stderr}),
			search.WithLogger(c.logger))
		defer o.Close()

		if err := o.Search(ctx, query); err != nil {
			return err
		}
		return printPosts(app.out, o.State().Results)
	})
}

// ShowDraft prints the saved draft.
func ShowDraft(ctx context.Context, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		d, ok, err := c.drafts.Load()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoDraft
		}
		_, err = fmt.Fprintf(app.out, "# %s\n\n%s\n", d.Title, d.Body)
		return err
	})
}

// ClearDraft removes the saved draft.
func ClearDraft(ctx context.Context, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		if err := c.drafts.Clear(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(app.out, "draft cleared")
		return err
	})
}

// ImportDraft replaces the saved draft with a Markdown file. The title comes
// from frontmatter or the first heading.
func ImportDraft(ctx context.Context, path string, opts ...Option) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return withCore(ctx, opts, func(app *application, c *core) error {
		d := markdown.Parse(data).Draft()
		written, err := c.drafts.Save(d)
		if err != nil {
			return err
		}
		if !written {
			_, err = fmt.Fprintln(app.out, "draft unchanged")
			return err
		}
		_, err = fmt.Fprintf(app.out, "draft saved: %q\n", d.Title)
		return err
	})
}

// PublishDraft publishes the saved draft through the composer, exactly as
// the write screen does, and clears it.
func PublishDraft(ctx context.Context, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		if _, ok, err := c.drafts.Load(); err != nil {
			return err
		} else if !ok {
			return ErrNoDraft
		}

		comp := composer.New(composer.Deps{
			Drafts:   c.drafts,
			Writer:   c.client,
			Uploader: c.uploader,
			Notifier: printNotifier{app.out},
			Logger:   c.logger,
		}, composer.Options{AutosaveDelay: c.cfg.Editor.AutosaveDelay})
		if err := comp.Mount(ctx); err != nil {
			return err
		}
		defer comp.Unmount()

		p, err := comp.Publish(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(app.out, "published %s: %s\n", p.ID, p.Title)
		return err
	})
}

// DeletePost deletes a post. Without confirmed nothing is sent.
func DeletePost(ctx context.Context, id models.PostID, confirmed bool, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		confirm := reconcile.NeverConfirm
		if confirmed {
			confirm = reconcile.AlwaysConfirm
		}
		r := reconcile.New(reconcile.Deps{
			Writer:    c.client,
			Confirmer: confirm,
			Notifier:  printNotifier{app.out},
			Logger:    c.logger,
		})
		deleted, err := r.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			_, err = fmt.Fprintf(app.out, "%s (pass --yes)\n", reconcile.DeletePrompt)
		}
		return err
	})
}

// UpdateProfile loads the author's profile, applies edit and stores the
// result. The backend replaces every field, so unedited ones are sent back
// unchanged.
func UpdateProfile(ctx context.Context, edit func(*models.ProfileUpdate), opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		u, err := c.client.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		p := models.ProfileOf(u)
		edit(&p)
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile: %w", apperr.Validation(err))
		}
		u, err = c.client.UpdateUserInfo(ctx, p)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		_, err = fmt.Fprintf(app.out, "profile updated: %s\n", u.BlogName)
		return err
	})
}

// Login authenticates against the backend and stores the token locally.
func Login(ctx context.Context, creds models.Credentials, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		if err := c.session.Login(ctx, creds); err != nil {
			return err
		}
		u, _ := c.session.User()
		_, err := fmt.Fprintf(app.out, "logged in as %s\n", u.Username)
		return err
	})
}

// Logout forgets the stored token.
func Logout(ctx context.Context, opts ...Option) error {
	return withCore(ctx, opts, func(app *application, c *core) error {
		c.session.Logout()
		_, err := fmt.Fprintln(app.out, "logged out")
		return err
	})
}
