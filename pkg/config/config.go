package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const ConfigFileName = ".solguess.json"

const (
	DefaultContractAddress = "0x4f39a2271B835cb5530b39e3dea57bfb9EE0484D"
	DefaultChainID         = 5
	DefaultReadOnlyRPCURL  = "https://rpc.ankr.com/eth_goerli"
	DefaultPriceURL        = "https://data.binance.com/api/v3/avgPrice?symbol=ETHBUSD"
	DefaultPollSeconds     = 60
	DefaultEventPollSecs   = 15
	DefaultLogFileName     = ".solguess.log"
)

// Environment variables holding wallet secrets. They are never written to the config file.
const (
	EnvPrivateKey = "SOLGUESS_PRIVATE_KEY"
	EnvPassphrase = "SOLGUESS_PASSPHRASE"
)

// NetworkConfig describes the single network the contract lives on.
type NetworkConfig struct {
	Name           string   `json:"name" yaml:"name"`
	ChainID        int64    `json:"chain_id" yaml:"chain_id"`
	RPCURLs        []string `json:"rpc_urls" yaml:"rpc_urls"`
	ReadOnlyRPCURL string   `json:"read_only_rpc_url" yaml:"read_only_rpc_url"`
	WSURL          string   `json:"ws_url,omitempty" yaml:"ws_url,omitempty"`
	ExplorerURL    string   `json:"explorer_url,omitempty" yaml:"explorer_url,omitempty"`
}

// Config holds application-wide settings.
type Config struct {
	Network               NetworkConfig `json:"network" yaml:"network"`
	ContractAddress       string        `json:"contract_address" yaml:"contract_address"`
	PriceURL              string        `json:"price_url" yaml:"price_url"`
	PollIntervalSeconds   int           `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	EventPollSeconds      int           `json:"event_poll_seconds" yaml:"event_poll_seconds"`
	ReceiptTimeoutSeconds int           `json:"receipt_timeout_seconds" yaml:"receipt_timeout_seconds"`
	KeystoreDir           string        `json:"keystore_dir,omitempty" yaml:"keystore_dir,omitempty"`
	LogFile               string        `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Network: NetworkConfig{
			Name:           "Goerli",
			ChainID:        DefaultChainID,
			ReadOnlyRPCURL: DefaultReadOnlyRPCURL,
			ExplorerURL:    "https://goerli.etherscan.io",
		},
		ContractAddress:     DefaultContractAddress,
		PriceURL:            DefaultPriceURL,
		PollIntervalSeconds: DefaultPollSeconds,
		EventPollSeconds:    DefaultEventPollSecs,
	}
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) EventPollInterval() time.Duration {
	return time.Duration(c.EventPollSeconds) * time.Second
}

// ReceiptTimeout returns zero when receipts are awaited without a deadline.
func (c Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutSeconds) * time.Second
}

func (c Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// WalletRPCURLs returns the endpoints used when a wallet is connected,
// falling back to the read-only endpoint if none were configured.
func (c Config) WalletRPCURLs() []string {
	if len(c.Network.RPCURLs) > 0 {
		return c.Network.RPCURLs
	}
	if c.Network.ReadOnlyRPCURL != "" {
		return []string{c.Network.ReadOnlyRPCURL}
	}
	return nil
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// DefaultLogPath places the log next to the user's home config.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultLogFileName
	}
	return filepath.Join(home, DefaultLogFileName)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	if isYAML(path) {
		return LoadYAML(f)
	}
	return LoadConfig(f)
}

// LoadConfig decodes a JSON configuration and fills in defaults.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return applyDefaults(cfg), nil
}

// LoadYAML decodes a YAML configuration and fills in defaults.
func LoadYAML(r io.Reader) (Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, err
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	def := Default()
	if cfg.Network.Name == "" {
		cfg.Network.Name = def.Network.Name
	}
	// A zero chain id is left alone: "-test" fills it from the RPC.
	if cfg.Network.ReadOnlyRPCURL == "" {
		cfg.Network.ReadOnlyRPCURL = def.Network.ReadOnlyRPCURL
	}
	if cfg.ContractAddress == "" {
		cfg.ContractAddress = def.ContractAddress
	}
	if cfg.PriceURL == "" {
		cfg.PriceURL = def.PriceURL
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if cfg.EventPollSeconds <= 0 {
		cfg.EventPollSeconds = def.EventPollSeconds
	}
	if cfg.ReceiptTimeoutSeconds < 0 {
		cfg.ReceiptTimeoutSeconds = 0
	}
	return cfg
}

// Validate reports the first structural problem in cfg.
func Validate(cfg Config) error {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("validation failed: contract address %q is not a hex address", cfg.ContractAddress)
	}
	if strings.TrimSpace(cfg.Network.ReadOnlyRPCURL) == "" && len(cfg.Network.RPCURLs) == 0 {
		return fmt.Errorf("validation failed: network %s has no RPC URLs", cfg.Network.Name)
	}
	if strings.TrimSpace(cfg.PriceURL) == "" {
		return fmt.Errorf("validation failed: price url is empty")
	}
	return nil
}

func SaveConfig(cfg Config, path string) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
