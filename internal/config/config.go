// Package config provides runtime configuration values for the service.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied on top by the
// binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

// Journal drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Token backends.
const (
	TokenLocal = "local"
	TokenGRPC  = "grpc"
)

// Config holds configuration knobs for the HTTP server, the executor, the
// journal and the payment token.
type Config struct {
	HTTPAddr           string        `yaml:"http_addr"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	QueueBuffer        int           `yaml:"queue_buffer"`
	QueueHighWatermark int           `yaml:"queue_high_watermark"`
	LogLevel           string        `yaml:"log_level"`

	// AdminAddress becomes the marketplace owner and first pauser when the
	// journal is empty.
	AdminAddress string `yaml:"admin_address"`
	// MarketplaceAddress is the spender purchasers approve on the token.
	MarketplaceAddress string `yaml:"marketplace_address"`
	IPFSGateway        string `yaml:"ipfs_gateway"`

	Journal JournalConfig `yaml:"journal"`
	Token   TokenConfig   `yaml:"token"`
}

type JournalConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
}

type TokenConfig struct {
	Backend string `yaml:"backend"`
	// GRPCAddr is dialed when Backend is grpc.
	GRPCAddr string `yaml:"grpc_addr"`
	// GRPCListen, when set with the local backend, serves the local token
	// over gRPC for other processes.
	GRPCListen string `yaml:"grpc_listen"`

	token.Config `yaml:",inline"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func u64env(key string, def uint64) uint64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func durenvs(key string, def time.Duration) time.Duration {
	sec := atoienv(key, int(def/time.Second))
	return time.Duration(sec) * time.Second
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		QueueBuffer:        64,
		QueueHighWatermark: 5000,
		LogLevel:           "info",
		AdminAddress:       "0x0000000000000000000000000000000000000001",
		MarketplaceAddress: "0x00000000000000000000000000000000000000ff",
		IPFSGateway:        "https://ipfs.io/ipfs/",
		Journal: JournalConfig{
			Driver: DriverMemory,
			Path:   "marketplace.db",
		},
		Token: TokenConfig{
			Backend: TokenLocal,
			Config: token.Config{
				Name:     "MESG Token",
				Symbol:   "MESG",
				Decimals: 18,
				Supply:   250000000,
			},
		},
	}
}

// Load collects configuration from environment with defaults.
func Load() Config {
	c := Defaults()
	c.applyEnv()
	return c
}

// LoadFile layers the YAML file at path (if any) between the defaults and
// the environment, then validates the result.
func LoadFile(path string) (Config, error) {
	c := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeout = durenvs("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.QueueBuffer = atoienv("QUEUE_BUFFER", c.QueueBuffer)
	c.QueueHighWatermark = atoienv("QUEUE_HIGH_WATERMARK", c.QueueHighWatermark)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.AdminAddress = getenv("ADMIN_ADDRESS", c.AdminAddress)
	c.MarketplaceAddress = getenv("MARKETPLACE_ADDRESS", c.MarketplaceAddress)
	c.IPFSGateway = getenv("IPFS_GATEWAY", c.IPFSGateway)

	c.Journal.Driver = getenv("JOURNAL_DRIVER", c.Journal.Driver)
	c.Journal.Path = getenv("JOURNAL_PATH", c.Journal.Path)
	c.Journal.DatabaseURL = getenv("DATABASE_URL", c.Journal.DatabaseURL)

	c.Token.Backend = getenv("TOKEN_BACKEND", c.Token.Backend)
	c.Token.GRPCAddr = getenv("TOKEN_GRPC_ADDR", c.Token.GRPCAddr)
	c.Token.GRPCListen = getenv("TOKEN_GRPC_LISTEN", c.Token.GRPCListen)
	c.Token.Name = getenv("TOKEN_NAME", c.Token.Name)
	c.Token.Symbol = getenv("TOKEN_SYMBOL", c.Token.Symbol)
	if d := atoienv("TOKEN_DECIMALS", int(c.Token.Decimals)); d >= 0 && d <= 255 {
		c.Token.Decimals = uint8(d)
	}
	c.Token.Supply = u64env("TOKEN_SUPPLY", c.Token.Supply)
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Journal.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Journal.Path == "" {
			return fmt.Errorf("config: journal driver sqlite needs JOURNAL_PATH")
		}
	case DriverPostgres:
		if c.Journal.DatabaseURL == "" {
			return fmt.Errorf("config: journal driver postgres needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown journal driver %q", c.Journal.Driver)
	}
	switch c.Token.Backend {
	case TokenLocal:
	case TokenGRPC:
		if c.Token.GRPCAddr == "" {
			return fmt.Errorf("config: token backend grpc needs TOKEN_GRPC_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown token backend %q", c.Token.Backend)
	}
	admin, err := model.ParseAddress(c.AdminAddress)
	if err != nil || admin.IsZero() {
		return fmt.Errorf("config: ADMIN_ADDRESS %q is not a usable address", c.AdminAddress)
	}
	spender, err := model.ParseAddress(c.MarketplaceAddress)
	if err != nil || spender.IsZero() {
		return fmt.Errorf("config: MARKETPLACE_ADDRESS %q is not a usable address", c.MarketplaceAddress)
	}
	if c.QueueBuffer <= 0 {
		return fmt.Errorf("config: QUEUE_BUFFER must be positive")
	}
	return nil
}

// Admin returns the parsed admin address. Call after Validate.
func (c Config) Admin() model.Address { return model.MustAddress(c.AdminAddress) }

// Spender returns the parsed marketplace address. Call after Validate.
func (c Config) Spender() model.Address { return model.MustAddress(c.MarketplaceAddress) }
