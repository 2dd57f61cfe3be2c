// Package account authenticates against the owner API and discovers the vehicles that belong to
// an account. An [Account] owns its configuration, so several independently configured accounts
// can be used side by side.
package account

import (
	"context"
	_ "embed" // Used to embed version for use with user agent
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/connector/inet"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

var (
	//go:embed version.txt
	libraryVersion string
)

func buildUserAgent(app string) string {
	library := strings.TrimSpace("teslajs/" + libraryVersion)
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return library
	}
	path := strings.Split(build.Path, "/")
	if len(path) == 0 {
		return library
	}

	if app == "" {
		app = path[len(path)-1]
		var version string
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			version = build.Main.Version
		} else {
			for _, info := range build.Settings {
				if info.Key == "vcs.revision" {
					if len(info.Value) > 8 {
						version = info.Value[0:8]
					}
					break
				}
			}
		}

		if version != "" {
			app = fmt.Sprintf("%s/%s", app, version)
		}
	}

	if app == "" {
		return library
	}
	return fmt.Sprintf("%s %s", app, library)
}

// Account allows interaction with a Tesla account.
type Account struct {
	conn   *inet.Connection
	config Config

	urlLock      sync.RWMutex
	streamingURL string
}

// New returns an Account configured by config. The config is copied.
func New(config Config) *Account {
	a := &Account{
		config: config,
		conn:   inet.NewConnection(config.BaseURL, buildUserAgent(config.UserAgent), config.HTTPClient, config.logger()),
	}
	if config.Observer != nil {
		a.conn.SetObserver(config.Observer)
	}
	a.SetStreamingURL(config.StreamingURL)
	return a
}

// SetBaseURL sets the owner API portal for subsequent requests. An empty string restores
// connector.DefaultBaseURL.
func (a *Account) SetBaseURL(uri string) {
	a.conn.SetBaseURL(uri)
}

func (a *Account) BaseURL() string {
	return a.conn.BaseURL()
}

// SetStreamingURL sets the streaming portal. An empty string restores
// connector.DefaultStreamingURL.
func (a *Account) SetStreamingURL(uri string) {
	if uri == "" {
		uri = connector.DefaultStreamingURL
	}
	a.urlLock.Lock()
	defer a.urlLock.Unlock()
	a.streamingURL = uri
}

func (a *Account) StreamingURL() string {
	a.urlLock.RLock()
	defer a.urlLock.RUnlock()
	return a.streamingURL
}

func (a *Account) UserAgent() string {
	return a.conn.UserAgent
}

func (a *Account) Logger() *log.Logger {
	return a.conn.Logger()
}

// HTTPClient returns the client used for every request made by a.
func (a *Account) HTTPClient() *http.Client {
	return a.conn.Client()
}

// Dispatcher returns the connector used for vehicle requests.
func (a *Account) Dispatcher() connector.Dispatcher {
	return a.conn
}

// GetVehicle binds the command catalog to session. The session must carry a VehicleID, either
// set by the caller or resolved by [Account.Vehicles].
func (a *Account) GetVehicle(session *connector.Session) *vehicle.Vehicle {
	return vehicle.NewVehicle(a.conn, session)
}

// Get sends a GET for command to the session's vehicle and returns the envelope's response.
func (a *Account) Get(ctx context.Context, session *connector.Session, command string) (json.RawMessage, error) {
	return a.conn.Get(ctx, session, command)
}

// Post sends a POST for command to the session's vehicle and returns the envelope's response.
func (a *Account) Post(ctx context.Context, session *connector.Session, command string, body interface{}) (json.RawMessage, error) {
	return a.conn.Post(ctx, session, command, body)
}
