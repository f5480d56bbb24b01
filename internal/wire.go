package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/scribe/internal/blogapi"
	"github.com/starford/scribe/internal/draft"
	"github.com/starford/scribe/internal/editor"
	"github.com/starford/scribe/internal/localstore"
	"github.com/starford/scribe/internal/media"
	"github.com/starford/scribe/internal/session"
)

// core is what every surface shares: the local store, the session, the
// backend client, the draft slot and the media uploader.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	kv       localstore.Store
	session  *session.Session
	client   *blogapi.Client
	drafts   *draft.Store
	uploader editor.Uploader
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

func newCore(ctx context.Context, cfg *Config, logger *slog.Logger) (*core, error) {
	kv, err := localstore.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}

	sess := session.New(kv,
		session.WithTokenKey(cfg.Store.TokenKey),
		session.WithLogger(logger))

	var tokens blogapi.TokenSource = sess
	if cfg.API.Token != "" {
		tokens = blogapi.StaticToken(cfg.API.Token)
	}
	client, err := blogapi.New(cfg.API.BaseURL,
		blogapi.WithTimeout(cfg.API.Timeout),
		blogapi.WithTokenSource(tokens),
		blogapi.WithLogger(logger))
	if err != nil {
		closeStore(kv)
		return nil, fmt.Errorf("init api client: %w", err)
	}
	sess.Bind(client)

	c := &core{
		cfg:     cfg,
		logger:  logger,
		kv:      kv,
		session: sess,
		client:  client,
		drafts:  draft.NewStore(kv, cfg.Store.DraftKey, logger),
	}

	c.uploader, err = newUploader(ctx, cfg, client)
	if err != nil {
		closeStore(kv)
		return nil, err
	}
	return c, nil
}

func newUploader(ctx context.Context, cfg *Config, client *blogapi.Client) (editor.Uploader, error) {
	var next editor.Uploader = client
	if cfg.Media.Backend == MediaBackendS3 {
		s3cfg := cfg.Media.S3.media()
		s3c, err := media.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 media: %w", err)
		}
		next = media.NewS3Uploader(s3c, s3cfg)
	}
	return media.Checked{Next: next, MaxBytes: cfg.Media.MaxBytes}, nil
}

// watcher returns the draft slot watcher, or nil when the backend cannot
// watch or watching is off.
func (c *core) watcher() draft.Watcher {
	if !c.cfg.Store.Watch {
		return nil
	}
	fs, ok := c.kv.(*localstore.FS)
	if !ok {
		c.logger.Warn("store.watch needs the fs backend, ignoring", slog.String("backend", c.cfg.Store.Backend))
		return nil
	}
	return fs
}

func (c *core) Close() {
	closeStore(c.kv)
}

func closeStore(kv localstore.Store) {
	if cl, ok := kv.(io.Closer); ok {
		_ = cl.Close()
	}
}
