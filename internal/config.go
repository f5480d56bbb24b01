package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/scribe/internal/autosave"
	"github.com/starford/scribe/internal/blogapi"
	"github.com/starford/scribe/internal/draft"
	"github.com/starford/scribe/internal/editor"
	"github.com/starford/scribe/internal/feed"
	"github.com/starford/scribe/internal/localstore"
	"github.com/starford/scribe/internal/media"
	"github.com/starford/scribe/internal/search"
	"github.com/starford/scribe/internal/session"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Media backends.
const (
	MediaBackendAPI = "api"
	MediaBackendS3  = "s3"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Auth   AuthConfig        `yaml:"auth"`
	API    APIConfig         `yaml:"api"`
	Store  StoreConfig       `yaml:"store"`
	Editor EditorConfig      `yaml:"editor"`
	Feed   FeedConfig        `yaml:"feed"`
	Media  MediaConfig       `yaml:"media"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Auth, &c.API, &c.Store, &c.Editor, &c.Feed, &c.Media} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the studio server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig guards the studio API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// APIConfig locates the blog backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// Token, when set, is sent instead of the logged-in session token.
	Token string `yaml:"token"`
}

// Validate validates the API configuration.
func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// StoreConfig selects where the draft and the session token are kept.
type StoreConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	DraftKey string `yaml:"draft_key"`
	TokenKey string `yaml:"token_key"`
	// Watch reports draft edits made by another process. fs backend only.
	Watch bool `yaml:"watch"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required,
			validation.In(localstore.BackendFS, localstore.BackendSQLite, localstore.BackendMemory)),
		validation.Field(&c.Path, validation.When(c.Backend != localstore.BackendMemory, validation.Required)),
		validation.Field(&c.DraftKey, validation.Required),
		validation.Field(&c.TokenKey, validation.Required),
	)
}

// EditorConfig tunes the composer.
type EditorConfig struct {
	AutosaveDelay time.Duration    `yaml:"autosave_delay"`
	MediaMode     editor.MediaMode `yaml:"media_mode"`
	ImageAlt      string           `yaml:"image_alt"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AutosaveDelay, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.MediaMode, validation.Required, validation.In(editor.ModePlaceholder, editor.ModeDeferred)),
	)
}

// FeedConfig tunes pagination and search.
type FeedConfig struct {
	PageSize       int           `yaml:"page_size"`
	SearchPageSize int           `yaml:"search_page_size"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

// Validate validates the feed configuration.
func (c *FeedConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.SearchPageSize, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.FetchTimeout, validation.Min(time.Duration(0))),
	)
}

// MediaConfig selects where uploads are stored.
type MediaConfig struct {
	Backend  string   `yaml:"backend"`
	MaxBytes int64    `yaml:"max_bytes"`
	S3       S3Config `yaml:"s3"`
}

// Validate validates the media configuration.
func (c *MediaConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(MediaBackendAPI, MediaBackendS3)),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
	); err != nil {
		return err
	}
	if c.Backend == MediaBackendS3 {
		return c.S3.Validate()
	}
	return nil
}

// S3Config holds the bucket settings for the s3 media backend.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PublicURL string `yaml:"public_url"`
	Prefix    string `yaml:"prefix"`
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.Endpoint, is.URL),
		validation.Field(&c.PublicURL, validation.Required, is.URL),
		validation.Field(&c.SecretKey, validation.When(c.AccessKey != "", validation.Required)),
	)
}

func (c *S3Config) media() media.S3Config {
	return media.S3Config{
		Bucket:    c.Bucket,
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		PublicURL: c.PublicURL,
		Prefix:    c.Prefix,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8090,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		API: APIConfig{
			BaseURL: blogapi.DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:  localstore.BackendFS,
			Path:     "./.scribe",
			DraftKey: draft.DefaultKey,
			TokenKey: session.DefaultTokenKey,
		},
		Editor: EditorConfig{
			AutosaveDelay: autosave.DefaultDelay,
			MediaMode:     editor.ModePlaceholder,
		},
		Feed: FeedConfig{
			PageSize:       feed.DefaultPageSize,
			SearchPageSize: search.DefaultPageSize,
			FetchTimeout:   15 * time.Second,
		},
		Media: MediaConfig{
			Backend:  MediaBackendAPI,
			MaxBytes: 20 << 20,
		},
	}
}
