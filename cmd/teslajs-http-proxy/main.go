package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/internal/metrics"
	"github.com/cscashby/TeslaJS/pkg/cli"
	"github.com/cscashby/TeslaJS/pkg/proxy"
)

const defaultPort = 443

// Environment variables read through cli.Config, so each may also be set in the --config file
// under the same name without the TESLAJS_ prefix (http_proxy_port, ...).
const (
	EnvTlsCert = "TESLAJS_HTTP_PROXY_TLS_CERT"
	EnvTlsKey  = "TESLAJS_HTTP_PROXY_TLS_KEY"
	EnvHost    = "TESLAJS_HTTP_PROXY_HOST"
	EnvPort    = "TESLAJS_HTTP_PROXY_PORT"
	EnvTimeout = "TESLAJS_HTTP_PROXY_TIMEOUT"
)

const nonLocalhostWarning = `
Do not listen on a network interface without adding client authentication. Unauthorized clients may
be used to create excessive traffic from your IP address to Tesla's servers, which Tesla may respond
to by rate limiting or blocking your connections.`

type HttpProxyConfig struct {
	keyFilename  string
	certFilename string
	host         string
	port         int
	timeout      time.Duration
}

func (c *HttpProxyConfig) registerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.certFilename, "cert", "", "TLS certificate chain `file` with concatenated server, intermediate CA, and root CA certificates")
	fs.StringVar(&c.keyFilename, "tls-key", "", "Server TLS private key `file`")
	fs.StringVar(&c.host, "host", "localhost", "Proxy server `hostname`")
	fs.IntVar(&c.port, "port", defaultPort, "`Port` to listen on")
	fs.DurationVar(&c.timeout, "timeout", proxy.DefaultTimeout, "Timeout interval when sending commands")
}

// setting returns the value of the TESLAJS_* variable name as loaded by config.
func setting(config *cli.Config, name string) (string, bool) {
	value := config.Value(envKey(name))
	return value, value != ""
}

func envKey(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, "TESLAJS_"))
}

// readFromEnvironment applies configuration loaded by config.ReadFromEnvironment.
// Values are not overwritten.
func (c *HttpProxyConfig) readFromEnvironment(config *cli.Config) error {
	if c.certFilename == "" {
		c.certFilename, _ = setting(config, EnvTlsCert)
	}

	if c.keyFilename == "" {
		c.keyFilename, _ = setting(config, EnvTlsKey)
	}

	if c.host == "localhost" {
		if host, ok := setting(config, EnvHost); ok {
			c.host = host
		}
	}

	var err error
	if c.port == defaultPort {
		if port, ok := setting(config, EnvPort); ok {
			c.port, err = strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid port: %s", port)
			}
		}
	}

	if c.timeout == proxy.DefaultTimeout {
		if timeoutEnv, ok := setting(config, EnvTimeout); ok {
			c.timeout, err = time.ParseDuration(timeoutEnv)
			if err != nil {
				return fmt.Errorf("invalid timeout: %s", timeoutEnv)
			}
		}
	}

	if (c.certFilename == "") != (c.keyFilename == "") {
		return errors.New("--cert and --tls-key must be provided together")
	}
	return nil
}

func newRootCommand(config *cli.Config, httpConfig *HttpProxyConfig) *cobra.Command {
	root := &cobra.Command{
		Use:   "teslajs-http-proxy [OPTION...]",
		Short: "A server that exposes a REST API for sending commands to Tesla vehicles",
		Long: "A server that exposes a REST API for sending commands to Tesla vehicles.\n" +
			"Clients authenticate with their own OAuth bearer tokens.\n" + nonLocalhostWarning,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFromEnvironment(); err != nil {
				return err
			}
			if err := httpConfig.readFromEnvironment(config); err != nil {
				return err
			}
			return serve(config, httpConfig)
		},
	}
	httpConfig.registerFlags(root.Flags())
	config.RegisterCommandLineFlags(root.Flags())
	return root
}

func serve(config *cli.Config, httpConfig *HttpProxyConfig) error {
	if httpConfig.host != "localhost" {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewPromObserver(registry)
	if err != nil {
		return err
	}
	config.AccountConfig.Observer = observer

	log.Call("Creating proxy")
	p := proxy.New(config.Account())
	p.Timeout = httpConfig.timeout
	handler := newMux(p, registry)
	addr := fmt.Sprintf("%s:%d", httpConfig.host, httpConfig.port)

	if httpConfig.certFilename == "" {
		server, certPEM := NewServer(addr, handler)
		fmt.Fprintf(os.Stderr, "No --cert provided. Serving a self-signed certificate:\n\n%s\n", certPEM)
		log.Always("Listening on %s", addr)
		return fmt.Errorf("server stopped: %w", server.ListenAndServeTLS("", ""))
	}

	// To add more application logic requests, such as alternative client authentication, wrap
	// handler in an http.Handler that performs your business logic and then, if the request is
	// authorized, invokes handler.ServeHTTP.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Always("Listening on %s", addr)
	return fmt.Errorf("server stopped: %w", server.ListenAndServeTLS(httpConfig.certFilename, httpConfig.keyFilename))
}

func main() {
	config, err := cli.NewConfig(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		os.Exit(1)
	}

	if err := newRootCommand(config, &HttpProxyConfig{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
