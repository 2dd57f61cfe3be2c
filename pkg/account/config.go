package account

import (
	"fmt"
	"net/http"
	"os"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/pkg/connector/inet"
)

// Environment variables consulted by [Config.ReadFromEnvironment].
const (
	EnvServer          = "TESLAJS_SERVER"
	EnvStreamingServer = "TESLAJS_STREAMING_SERVER"
	EnvUser            = "TESLAJS_USER"
	EnvPass            = "TESLAJS_PASS"
	EnvClientID        = "TESLAJS_CLIENT_ID"
	EnvClientSecret    = "TESLAJS_CLIENT_SECRET"
	EnvLog             = "TESLAJS_LOG"
)

// Config holds the settings of a single Account. The zero value talks to the default portals
// with http.DefaultClient and the package-level logger.
type Config struct {
	// BaseURL is the owner API portal. Empty selects connector.DefaultBaseURL.
	BaseURL string
	// StreamingURL is the telemetry streaming portal. Empty selects
	// connector.DefaultStreamingURL.
	StreamingURL string

	// ClientID and ClientSecret identify the application to the OAuth endpoint.
	ClientID     string
	ClientSecret string

	// UsernameOverride and PasswordOverride replace the credentials passed to Login when set.
	UsernameOverride string
	PasswordOverride string

	// UserAgent is sent with every request. Empty builds one from the binary's build info.
	UserAgent string

	HTTPClient *http.Client
	Logger     *log.Logger
	Observer   inet.Observer

	// LogLevel is applied to Logger when set. With a nil Logger, New gives the account its own
	// stderr logger at this level; the package-level logger is never modified.
	LogLevel *log.Level
}

// ReadFromEnvironment populates unset fields from TESLAJS_* environment variables. Fields that
// are already set are left alone.
func (c *Config) ReadFromEnvironment() error {
	fill := func(field *string, name string) {
		if *field == "" {
			*field = os.Getenv(name)
		}
	}
	fill(&c.BaseURL, EnvServer)
	fill(&c.StreamingURL, EnvStreamingServer)
	fill(&c.UsernameOverride, EnvUser)
	fill(&c.PasswordOverride, EnvPass)
	fill(&c.ClientID, EnvClientID)
	fill(&c.ClientSecret, EnvClientSecret)

	if c.LogLevel == nil {
		if value, ok := os.LookupEnv(EnvLog); ok {
			level, err := log.ParseLevel(value)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvLog, err)
			}
			c.LogLevel = &level
		}
	}
	if c.LogLevel != nil && c.Logger != nil {
		c.Logger.SetLevel(*c.LogLevel)
	}
	return nil
}

// logger returns the logger for an account built from c.
func (c *Config) logger() *log.Logger {
	switch {
	case c.Logger == nil && c.LogLevel != nil:
		return log.NewConsole(os.Stderr, *c.LogLevel)
	case c.Logger == nil:
		return log.Default()
	case c.LogLevel != nil:
		c.Logger.SetLevel(*c.LogLevel)
	}
	return c.Logger
}
