// Package config loads the ammd configuration file and genesis.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/defistate/defistate-amm-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AMMD_"

// Duration wraps time.Duration for YAML strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config is the ammd runtime configuration.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	RPCAddr     string `yaml:"rpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	DataDir     string `yaml:"data_dir"`

	CheckpointInterval Duration `yaml:"checkpoint_interval"`
	StreamBufferSize   uint     `yaml:"stream_buffer_size"`
	// RPCWrites exposes the trading methods of the amm namespace.
	RPCWrites bool `yaml:"rpc_writes"`

	Log     logging.Config `yaml:"log"`
	Kafka   KafkaConfig    `yaml:"kafka"`
	Redis   RedisConfig    `yaml:"redis"`
	Genesis GenesisConfig  `yaml:"genesis"`
}

// KafkaConfig enables the kafka event sink when Brokers is set.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout Duration `yaml:"batch_timeout"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisConfig enables the reserves cache when Addr is set.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// GenesisConfig describes the exchange a fresh node starts from.
type GenesisConfig struct {
	ChainID        uint64         `yaml:"chain_id"`
	FactoryAddress common.Address `yaml:"factory"`
	RouterAddress  common.Address `yaml:"router"`
	WETHAddress    common.Address `yaml:"weth"`
	FeeToSetter    common.Address `yaml:"fee_to_setter"`
	FeeBps         uint16         `yaml:"fee_bps"`
	Tokens         []GenesisToken `yaml:"tokens"`
	Balances       []GenesisAlloc `yaml:"balances"`
	// Pairs are seeded after Balances, so providers must be funded there.
	Pairs []GenesisPair `yaml:"pairs"`
}

type GenesisToken struct {
	Address  common.Address `yaml:"address"`
	Symbol   string         `yaml:"symbol"`
	Name     string         `yaml:"name"`
	Decimals uint8          `yaml:"decimals"`
}

// GenesisAlloc mints Amount (base units, decimal) of Asset to Account. A
// zero Asset allocates the native currency.
type GenesisAlloc struct {
	Asset   common.Address `yaml:"asset"`
	Account common.Address `yaml:"account"`
	Amount  string         `yaml:"amount"`
}

// Value parses Amount.
func (a GenesisAlloc) Value() (*uint256.Int, error) {
	v, err := uint256.FromDecimal(a.Amount)
	if err != nil {
		return nil, fmt.Errorf("genesis balance for %s: invalid amount %q: %w", a.Account.Hex(), a.Amount, err)
	}
	return v, nil
}

// GenesisPair creates the TokenA/TokenB pair and deposits AmountA and AmountB
// (base units, decimal) from Provider, who receives the liquidity shares.
type GenesisPair struct {
	TokenA   common.Address `yaml:"token_a"`
	TokenB   common.Address `yaml:"token_b"`
	AmountA  string         `yaml:"amount_a"`
	AmountB  string         `yaml:"amount_b"`
	Provider common.Address `yaml:"provider"`
}

// Amounts parses AmountA and AmountB.
func (p GenesisPair) Amounts() (*uint256.Int, *uint256.Int, error) {
	a, err := uint256.FromDecimal(p.AmountA)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis pair %s/%s: invalid amount_a %q: %w", p.TokenA.Hex(), p.TokenB.Hex(), p.AmountA, err)
	}
	b, err := uint256.FromDecimal(p.AmountB)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis pair %s/%s: invalid amount_b %q: %w", p.TokenA.Hex(), p.TokenB.Hex(), p.AmountB, err)
	}
	return a, b, nil
}

func defaults() Config {
	return Config{
		HTTPAddr:           ":8080",
		RPCAddr:            ":8545",
		MetricsAddr:        ":9100",
		DataDir:            "data",
		CheckpointInterval: Duration{time.Minute},
		StreamBufferSize:   100,
		RPCWrites:          true,
		Log:                logging.Config{Level: "info", Format: "json", Service: "ammd"},
		Kafka:              KafkaConfig{Topic: "amm-events"},
		Redis:              RedisConfig{TTL: Duration{10 * time.Minute}},
		Genesis:            GenesisConfig{FeeBps: 30},
	}
}

// LoadConfig reads the YAML file at path, then applies AMMD_* overrides from
// the environment and from a .env file next to the working directory.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return nil, errors.New("config path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("HTTP_ADDR", &c.HTTPAddr)
	str("RPC_ADDR", &c.RPCAddr)
	str("METRICS_ADDR", &c.MetricsAddr)
	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)

	if v, ok := lookup(EnvPrefix + "LOG_FILE"); ok {
		if c.Log.File == nil {
			c.Log.File = &logging.File{}
		}
		c.Log.File.Path = v
	}
	if v, ok := lookup(EnvPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Redis.DB = db
	}
	if v, ok := lookup(EnvPrefix + "RPC_WRITES"); ok {
		writes, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sRPC_WRITES: %w", EnvPrefix, err)
		}
		c.RPCWrites = writes
	}
	if v, ok := lookup(EnvPrefix + "CHECKPOINT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCHECKPOINT_INTERVAL: %w", EnvPrefix, err)
		}
		c.CheckpointInterval = Duration{d}
	}
	return nil
}

// Validate checks the fields ammd cannot start without.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http_addr is required")
	}
	if c.RPCAddr == "" {
		return errors.New("config: rpc_addr is required")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.StreamBufferSize < 1 {
		return errors.New("config: stream_buffer_size must be greater than 0")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic is required when brokers are set")
	}
	return c.Genesis.validate()
}

func (g *GenesisConfig) validate() error {
	if g.ChainID == 0 {
		return errors.New("config: genesis.chain_id is required")
	}
	if g.FactoryAddress == (common.Address{}) {
		return errors.New("config: genesis.factory is required")
	}
	if g.RouterAddress == (common.Address{}) {
		return errors.New("config: genesis.router is required")
	}
	if g.WETHAddress == (common.Address{}) {
		return errors.New("config: genesis.weth is required")
	}
	if g.FeeBps >= 10_000 {
		return fmt.Errorf("config: genesis.fee_bps %d out of range", g.FeeBps)
	}
	seen := make(map[common.Address]bool, len(g.Tokens))
	for _, t := range g.Tokens {
		if t.Address == (common.Address{}) {
			return fmt.Errorf("config: genesis token %q has no address", t.Symbol)
		}
		if seen[t.Address] {
			return fmt.Errorf("config: genesis token %s listed twice", t.Address.Hex())
		}
		seen[t.Address] = true
	}
	for _, a := range g.Balances {
		if _, err := a.Value(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for _, p := range g.Pairs {
		if p.TokenA == p.TokenB {
			return fmt.Errorf("config: genesis pair %s has identical tokens", p.TokenA.Hex())
		}
		if p.Provider == (common.Address{}) {
			return fmt.Errorf("config: genesis pair %s/%s has no provider", p.TokenA.Hex(), p.TokenB.Hex())
		}
		if _, _, err := p.Amounts(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}
