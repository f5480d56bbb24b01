package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	// logs receives the JSON log stream. stdio transports need it off stdout.
	logs io.Writer
	out  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects logs. The default is stdout.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logs = w
	}
}

// WithOutput sets where one-shot commands print their results.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

func newApplication(opts []Option) *application {
	app := &application{logs: os.Stdout, out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	return app
}
