package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/scribe/internal"
	"github.com/starford/scribe/internal/models"
	pkgconfig "github.com/starford/scribe/pkg/config"
)

// options loads the config named by --config. Missing files fall back to
// defaults so one-shot commands work without one.
func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{internal.WithConfig(cfg)}, nil
}

// action adapts an internal entry point to a cli action.
func action(fn func(ctx context.Context, cmd *cli.Command, opts []internal.Option) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := options(cmd)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, opts)
	}
}

func serve(ctx context.Context, _ *cli.Command, opts []internal.Option) error {
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "scribe",
		Usage: "Authoring and feed client for a single-author blog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Action: action(serve),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the local studio HTTP server",
				Action: action(serve),
			},
			{
				Name:  "mcp",
				Usage: "Serve MCP tools on stdio",
				Action: action(func(ctx context.Context, _ *cli.Command, opts []internal.Option) error {
					return internal.RunMCP(ctx, opts...)
				}),
			},
			{
				Name:  "feed",
				Usage: "List published posts",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "pages", Aliases: []string{"p"}, Value: 1, Usage: "Pages to load, 0 for all"},
				},
				Action: action(func(ctx context.Context, cmd *cli.Command, opts []internal.Option) error {
					return internal.ListFeed(ctx, int(cmd.Int("pages")), opts...)
				}),
			},
			{
				Name:      "search",
				Usage:     "Search posts on the backend",
				ArgsUsage: "<keyword>",
				Action: action(func(ctx context.Context, cmd *cli.Command, opts []internal.Option) error {
					if cmd.Args().Len() == 0 {
						return errors.New("search: keyword is required")
					}
					return internal.SearchPosts(ctx, cmd.Args().First(), opts...)
				}),
			},
			{
				Name:  "draft",
				Usage: "Inspect or replace the local draft",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Print the saved draft",
						Action: action(func(ctx context.Context, _ *cli.Command, opts []internal.Option) error {
							return internal.ShowDraft(ctx, opts...)
						}),
					},
					{
						Name:  "clear",
						Usage: "Delete the saved draft",
						Action: action(func(ctx context.Context, _ *cli.Command, opts []internal.Option) error {
							return internal.ClearDraft(ctx, opts...)
						}),
					},
					{
						Name:      "import",
						Usage:     "Replace the draft with a Markdown file",
						ArgsUsage: "<file.md>",
						Action: action(func(ctx context.Context, cmd *cli.Command, opts []internal.Option) error {
							if cmd.Args().Len() == 0 {
								return errors.New("draft import: file is required")
							}
							return internal.ImportDraft(ctx, cmd.Args().First(), opts...)
						}),
					},
				},
			},
			{
				Name:  "publish",
				Usage: "Publish the saved draft",
				Action: action(func(ctx context.Context, _ *cli.Command, opts []internal.Option) error {
					return internal.PublishDraft(ctx, opts...)
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a post",
				ArgsUsage: "<post-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm the deletion"},
				},
				Action: action(func(ctx context.Context, cmd *cli.Command, opts []internal.Option) error {
					id, err := models.ParsePostID(cmd.Args().First())
					if err != nil {
						return fmt.Errorf("delete: %w", err)
					}
					return internal.DeletePost(ctx, id, cmd.Bool("yes"), opts...)
				}),
			},
			{
				Name:  "login",
				Usage: "Log in and store the token locally",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
					&cli.StringFlag{Name: "password", Sources: cli.EnvVars("SCRIBE_PASSWORD"), Required: true},
				},
				Action: action(func(ctx context.Context, cmd *cli.Command, opts []internal.Option) error {
					return internal.Login(ctx, models.Credentials{
						Username: cmd.String("username"),
						Password: cmd.String("password"),
					}, opts...)
				}),
			},
			{
				Name:  "profile",
				Usage: "Edit the author profile; unset flags keep their value",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "blog-name"},
					&cli.StringFlag{Name: "bio"},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "avatar"},
					&cli.StringFlag{Name: "wechat"},
				},
				Action: action(func(ctx context.Context, cmd *cli.Command, opts []internal.Option) error {
					set := func(name string, dst *string) {
						if cmd.IsSet(name) {
							*dst = cmd.String(name)
						}
					}
					return internal.UpdateProfile(ctx, func(p *models.ProfileUpdate) {
						set("blog-name", &p.BlogName)
						set("bio", &p.Bio)
						set("email", &p.Email)
						set("avatar", &p.Avatar)
						set("wechat", &p.WechatID)
					}, opts...)
				}),
			},
			{
				Name:  "logout",
				Usage: "Forget the stored token",
				Action: action(func(ctx context.Context, _ *cli.Command, opts []internal.Option) error {
					return internal.Logout(ctx, opts...)
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
