// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/mcstatus/internal/logger"
	"github.com/woozymasta/mcstatus/internal/minecraft"
	"github.com/woozymasta/mcstatus/internal/vars"
)

// Subcommand names.
const (
	CommandPing    = "ping"
	CommandStatus  = "status"
	CommandQuery   = "query"
	CommandJSON    = "json"
	CommandServe   = "serve"
	CommandRecheck = "recheck"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Probe   Probe         `group:"Probe Options" namespace:"probe" env-namespace:"MCSTATUS_PROBE"`
	Storage Storage       `group:"Storage Options" namespace:"db" env-namespace:"MCSTATUS_DB"`
	GeoIP   GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"MCSTATUS_GEOIP"`
	Logger  logger.Config `group:"Logger Options" namespace:"log" env-namespace:"MCSTATUS_LOG"`

	Ping    AddressCommand `command:"ping" description:"Ping the server and print its latency"`
	Status  AddressCommand `command:"status" description:"Print version, description and players from the server list ping"`
	Query   AddressCommand `command:"query" description:"Print the full stat of the server query protocol (UDP)"`
	JSON    AddressCommand `command:"json" description:"Print ping, status and query results as JSON"`
	Serve   Serve          `command:"serve" description:"Run the HTTP probe API"`
	Recheck Recheck        `command:"recheck" description:"Re-probe stored servers and update or prune them"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`

	// Command is the name of the selected subcommand.
	Command string `no-flag:"true"`
}

// Probe holds settings shared by every ping, status and query probe.
type Probe struct {
	// betteralign:ignore

	Timeout         time.Duration `short:"T" long:"timeout" env:"TIMEOUT" description:"Connect and read timeout" default:"3s"`
	Tries           int           `short:"r" long:"tries" env:"TRIES" description:"Attempts per probe" default:"3"`
	ProtocolVersion int32         `long:"protocol-version" env:"PROTOCOL_VERSION" description:"Protocol version announced in the handshake" default:"47"`
}

// Options converts the probe settings for the minecraft package.
func (p Probe) Options() minecraft.Options {
	return minecraft.Options{
		Timeout:         p.Timeout,
		Tries:           p.Tries,
		ProtocolVersion: p.ProtocolVersion,
	}
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path          string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"mcstatus.db"`
	GenerateCount int    `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"mcstatus.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// AddressCommand is a subcommand taking a single server address.
type AddressCommand struct {
	Args struct {
		Address string `positional-arg-name:"address" description:"Server address, host[:port]"`
	} `positional-args:"yes" required:"yes"`
}

// Serve holds the options of the serve command.
type Serve struct {
	// betteralign:ignore

	Server    Server    `group:"Server Options" env-namespace:"MCSTATUS"`
	RateLimit RateLimit `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"MCSTATUS_RATE_LIMIT"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address      string   `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken    string   `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	AllowedHosts []string `short:"a" long:"allowed-host" env:"ALLOWED_HOSTS" description:"Only probe these hosts (all when empty)" env-delim:","`
	TrustProxy   bool     `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"30"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
	SoftLimitDur   time.Duration `long:"soft" env:"SOFT" description:"Soft limit: serve stored status if probed within duration" default:"30s"`
}

// Recheck holds the options of the recheck command.
type Recheck struct {
	// betteralign:ignore

	Stale   time.Duration `long:"stale" env:"MCSTATUS_RECHECK_STALE" description:"Only re-check servers not seen within this duration (0 checks all)" default:"0s"`
	Prune   bool          `long:"prune" env:"MCSTATUS_RECHECK_PRUNE" description:"Delete servers that do not respond"`
	Workers int           `long:"workers" env:"MCSTATUS_RECHECK_WORKERS" description:"Concurrent probes" default:"10"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"
	parser.SubcommandsOptional = true

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}
	cfg.Command = parser.Active.Name

	if cfg.Command == CommandServe && cfg.Serve.Server.AuthToken == "" {
		fmt.Fprintln(os.Stderr,
			"Required flag `-t, --auth-token' or environment variable `MCSTATUS_AUTH_TOKEN` was not specified!")
		os.Exit(1)
	}

	return &cfg
}

// Address returns the positional address of the selected address command.
func (c *Config) Address() string {
	switch c.Command {
	case CommandPing:
		return c.Ping.Args.Address
	case CommandStatus:
		return c.Status.Args.Address
	case CommandQuery:
		return c.Query.Args.Address
	case CommandJSON:
		return c.JSON.Args.Address
	}

	return ""
}
