/*
Package cli facilitates building command-line applications that drive vehicles through the owner
API. It defines a [Config] type that registers common command-line flags (on a pflag FlagSet, so
it plugs into cobra commands) together with environment variable and config-file equivalents.

The package uses [keyring]'s platform-agnostic interface for storing OAuth tokens in an
OS-dependent credential store.

# Examples

	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags(cmd.Flags()) // Adds flags for OAuth tokens, vehicle selection, etc.
	// ... cobra parses the command line ...
	if err := config.ReadFromEnvironment(); err != nil { // Fills in missing fields from $TESLAJS_* and --config
		panic(err)
	}
	config.LoadCredentials() // Prompt for keyring password if needed

	acct, car, err := config.Connect(ctx)
	if err != nil {
		panic(err)
	}

Values given on the command line always win over the config file, which in turn loses to the
environment.
*/
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/pkg/account"
	"github.com/cscashby/TeslaJS/pkg/cache"
	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set common parameters. The
// account-level variables (TESLAJS_SERVER, TESLAJS_LOG, ...) are listed in package account.
const (
	EnvTokenName    = "TESLAJS_TOKEN_NAME"
	EnvTokenFile    = "TESLAJS_TOKEN_FILE"
	EnvVehicleID    = "TESLAJS_VEHICLE_ID"
	EnvCarIndex     = "TESLAJS_CAR_INDEX"
	EnvCacheFile    = "TESLAJS_CACHE_FILE"
	EnvConfig       = "TESLAJS_CONFIG"
	EnvKeyringType  = "TESLAJS_KEYRING_TYPE"
	EnvKeyringPass  = "TESLAJS_KEYRING_PASSWORD"
	EnvKeyringPath  = "TESLAJS_KEYRING_PATH"
	EnvKeyringDebug = "TESLAJS_KEYRING_DEBUG"
	EnvVerbose      = "TESLAJS_VERBOSE"

	envPrefix = "TESLAJS_"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagOAuth   Flag = 1 // Enable OAuth token options.
	FlagVehicle Flag = 2 // Enable vehicle selection options. Requires FlagOAuth to connect.
	FlagAll     Flag = FlagOAuth | FlagVehicle
)

var (
	ErrNoTokenSpecified = errors.New("OAuth token location not provided")
	ErrKeyNotFound      = keyring.ErrKeyNotFound
)

// Config fields determine how a client authenticates to Tesla's backend and which vehicle it
// talks to.
type Config struct {
	Flags            Flag   // Controls which set of environment variables/CLI flags to use.
	KeyringTokenName string // Username for OAuth token in system keyring
	TokenFilename    string
	VehicleID        string
	CarIndex         int // Negative until set by a flag or the environment.
	CacheFilename    string
	ConfigFilename   string
	Verbose          bool
	Backend          keyring.Config
	BackendType      backendType
	Debug            bool // Enable keyring debug messages

	// AccountConfig is passed to account.New. Its fields can be set by flags, the config file or
	// the account package's own environment variables.
	AccountConfig account.Config

	values     *koanf.Koanf
	password   *string
	vehicles   *cache.VehicleCache
	acct       *account.Account
	oauthToken string
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags:    flags,
		CarIndex: -1,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
		values: koanf.New("."),
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

// RegisterCommandLineFlags adds c's options to fs.
func (c *Config) RegisterCommandLineFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFilename, "config", "", "Load settings from a YAML or JSON `file`. Defaults to $TESLAJS_CONFIG.")
	fs.BoolVarP(&c.Verbose, "verbose", "v", false, "Log every request and response. Defaults to $TESLAJS_VERBOSE.")
	fs.StringVar(&c.AccountConfig.BaseURL, "server", "", "Owner API `URL`. Defaults to $TESLAJS_SERVER.")
	if c.Flags.isSet(FlagVehicle) {
		if !c.Flags.isSet(FlagOAuth) {
			log.Call("FlagVehicle is set but FlagOAuth is not. A token is required to resolve vehicles.")
		}
		fs.StringVar(&c.VehicleID, "vehicle-id", "", "Vehicle `id` (id_s). Defaults to $TESLAJS_VEHICLE_ID.")
		fs.IntVar(&c.CarIndex, "car-index", -1, "Position of the vehicle in the account's vehicle list. Defaults to $TESLAJS_CAR_INDEX or 0.")
		fs.StringVar(&c.CacheFilename, "vehicle-cache", "", "Load resolved vehicles from `file`. Defaults to $TESLAJS_CACHE_FILE.")
	}
	if c.Flags.isSet(FlagOAuth) {
		fs.StringVar(&c.KeyringTokenName, "token-name", "", "System keyring `name` for OAuth token. Defaults to $TESLAJS_TOKEN_NAME.")
		fs.StringVar(&c.TokenFilename, "token-file", "", "`File` containing OAuth token. Defaults to $TESLAJS_TOKEN_FILE.")

		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		fs.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $TESLAJS_KEYRING_TYPE.")
		fs.StringVar(&c.Backend.FileDir, "keyring-file-dir", "", "keyring `directory` for file-backed keyring types. Defaults to $TESLAJS_KEYRING_PATH or "+keyringDirectory+".")
		fs.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
		c.registerCommandLineFlagsOsSpecific(fs)
	}
}

// LoadCredentials attempts to open a keyring, prompting for a password if needed. Call this
// method before [Config.Connect] to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if c.Flags.isSet(FlagOAuth) {
		if _, err := c.token(); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// envKey maps TESLAJS_TOKEN_NAME to token_name, the key used in config files.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, envPrefix))
}

// ReadFromEnvironment populates c using the config file (if any) and environment variables.
// Values that are already populated are not overwritten, and environment variables take
// precedence over the config file.
//
// Calling ReadFromEnvironment after the command line has been parsed prevents the environment
// from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() error {
	k := koanf.New(".")
	if c.ConfigFilename == "" {
		c.ConfigFilename = os.Getenv(EnvConfig)
	}
	if c.ConfigFilename != "" {
		log.Call("Loading settings from %s", c.ConfigFilename)
		if err := loadFile(k, c.ConfigFilename); err != nil {
			return err
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return err
	}
	c.values = k

	fill := func(field *string, key string) {
		if *field == "" && k.Exists(key) {
			*field = k.String(key)
			log.Call("Set %s to '%s'", key, *field)
		}
	}

	if !c.Verbose {
		c.Verbose = k.Bool(envKey(EnvVerbose))
	}
	if c.Verbose && c.AccountConfig.LogLevel == nil {
		level := log.LevelAll
		c.AccountConfig.LogLevel = &level
	}
	if c.AccountConfig.LogLevel == nil && k.Exists(envKey(account.EnvLog)) {
		level, err := log.ParseLevel(k.String(envKey(account.EnvLog)))
		if err != nil {
			return fmt.Errorf("%s: %w", account.EnvLog, err)
		}
		c.AccountConfig.LogLevel = &level
	}
	fill(&c.AccountConfig.BaseURL, envKey(account.EnvServer))
	fill(&c.AccountConfig.StreamingURL, envKey(account.EnvStreamingServer))
	fill(&c.AccountConfig.ClientID, envKey(account.EnvClientID))
	fill(&c.AccountConfig.ClientSecret, envKey(account.EnvClientSecret))
	fill(&c.AccountConfig.UsernameOverride, envKey(account.EnvUser))
	fill(&c.AccountConfig.PasswordOverride, envKey(account.EnvPass))
	if err := c.AccountConfig.ReadFromEnvironment(); err != nil {
		return err
	}

	if c.Flags.isSet(FlagVehicle) {
		fill(&c.VehicleID, envKey(EnvVehicleID))
		fill(&c.CacheFilename, envKey(EnvCacheFile))
		if c.CarIndex < 0 {
			c.CarIndex = k.Int(envKey(EnvCarIndex))
			if c.CarIndex < 0 {
				return fmt.Errorf("%s must not be negative", EnvCarIndex)
			}
		}
	}
	if c.Flags.isSet(FlagOAuth) {
		if c.KeyringTokenName == "" && c.TokenFilename == "" {
			fill(&c.KeyringTokenName, envKey(EnvTokenName))
			fill(&c.TokenFilename, envKey(EnvTokenFile))
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(k.String(envKey(EnvKeyringType))); err == nil {
				log.Call("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := k.String(envKey(EnvKeyringPass))
			c.password = &password
			if len(password) > 0 {
				log.Call("Set keyring File Password to %s", strings.Repeat("*", len("hunter2")))
			}
		}
		fill(&c.Backend.FileDir, envKey(EnvKeyringPath))
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = keyringDirectory
		}
		if !c.Debug {
			c.Debug = k.Exists(envKey(EnvKeyringDebug))
		}
	}
	return nil
}

// Value returns a setting loaded by [Config.ReadFromEnvironment]. The key is the environment
// variable name without the TESLAJS_ prefix, in lower case (http_proxy_port for
// TESLAJS_HTTP_PROXY_PORT).
func (c *Config) Value(key string) string {
	if c.values == nil {
		return ""
	}
	return c.values.String(key)
}

func (c *Config) token() (string, error) {
	if c.oauthToken != "" {
		return c.oauthToken, nil
	}
	if c.TokenFilename == "" && c.KeyringTokenName == "" {
		return "", ErrNoTokenSpecified
	}
	if c.TokenFilename != "" {
		token, err := os.ReadFile(c.TokenFilename)
		if err == nil {
			c.oauthToken = strings.TrimSpace(string(token))
			c.warnIfExpired()
			return c.oauthToken, nil
		}
		if !errors.Is(err, fs.ErrNotExist) || c.KeyringTokenName == "" {
			return "", err
		}
		// If the token file doesn't exist, fall through to trying to load from the system keyring.
	}
	var err error
	c.oauthToken, err = c.LoadTokenFromKeyring()
	if err == nil {
		c.warnIfExpired()
	}
	return c.oauthToken, err
}

func (c *Config) warnIfExpired() {
	if account.TokenExpired(c.oauthToken, time.Now()) {
		log.Always("OAuth token has expired. Run teslajs-auth-token to log in again.")
	}
}

// SaveToken writes token to the system keyring or file, depending on what options are
// configured. The method prefers the keyring if both options are available.
func (c *Config) SaveToken(token string) error {
	if c.KeyringTokenName != "" {
		return c.SaveTokenToKeyring(token)
	}
	if c.TokenFilename != "" {
		return os.WriteFile(c.TokenFilename, []byte(token), 0600)
	}
	return ErrNoTokenSpecified
}

// Account returns the configured owner API account. The account is created once; later calls
// return the same value.
func (c *Config) Account() *account.Account {
	if c.acct == nil {
		c.acct = account.New(c.AccountConfig)
	}
	return c.acct
}

// Session builds a session from the loaded token and the configured vehicle selection. The
// vehicle ID may be empty; see [Config.Connect] to resolve it.
func (c *Config) Session() (*connector.Session, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	index := c.CarIndex
	if index < 0 {
		index = 0
	}
	return &connector.Session{AuthToken: token, VehicleID: c.VehicleID, CarIndex: index}, nil
}

func (c *Config) cacheKey(carIndex int) string {
	name := c.KeyringTokenName
	if name == "" {
		name = c.TokenFilename
	}
	return cache.Key(name, carIndex)
}

func (c *Config) loadCache() error {
	if c.vehicles != nil || c.CacheFilename == "" {
		return nil
	}
	log.Call("Loading cache from %s...", c.CacheFilename)
	var err error
	c.vehicles, err = cache.ImportFromFile(c.CacheFilename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load vehicle cache: %s", err)
		}
		// Create a new cache if one couldn't be loaded from the file
		c.vehicles = cache.New(0)
	}
	return nil
}

// Connect resolves the configured vehicle and returns it together with its account.
//
// The vehicle ID comes from c.VehicleID when set, then from the vehicle cache, and finally from
// the account's vehicle list at c.CarIndex. Lookups are written back to the cache file.
func (c *Config) Connect(ctx context.Context) (acct *account.Account, car *vehicle.Vehicle, err error) {
	session, err := c.Session()
	if err != nil {
		return nil, nil, err
	}
	acct = c.Account()
	if session.VehicleID == "" {
		if err = c.resolveVehicle(ctx, acct, session); err != nil {
			return nil, nil, err
		}
	}
	return acct, acct.GetVehicle(session), nil
}

func (c *Config) resolveVehicle(ctx context.Context, acct *account.Account, session *connector.Session) error {
	if err := c.loadCache(); err != nil {
		return err
	}
	key := c.cacheKey(session.CarIndex)
	if c.vehicles != nil {
		if entry, ok := c.vehicles.GetEntry(key); ok {
			log.Call("Using cached vehicle %s (%s)", entry.VehicleID, entry.DisplayName)
			session.VehicleID = entry.VehicleID
			return nil
		}
	}
	record, err := acct.Vehicles(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to resolve vehicle: %w", err)
	}
	log.Always("Using vehicle %s (%s)", record.ID, record.DisplayName)
	if c.vehicles != nil {
		c.vehicles.Update(key, cache.NewEntry(record, session.CarIndex))
		if err := c.vehicles.ExportToFile(c.CacheFilename); err != nil {
			log.Error("Error updating cache: %s", err)
		}
	}
	return nil
}

// ForgetCachedVehicle removes the configured vehicle from the cache file so that the next
// [Config.Connect] queries the vehicle list again.
func (c *Config) ForgetCachedVehicle() error {
	if err := c.loadCache(); err != nil {
		return err
	}
	if c.vehicles == nil {
		return nil
	}
	index := c.CarIndex
	if index < 0 {
		index = 0
	}
	c.vehicles.Remove(c.cacheKey(index))
	return c.vehicles.ExportToFile(c.CacheFilename)
}
