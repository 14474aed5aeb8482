package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// OperatorEntry is one known peer operator in multi-operator deployments.
type OperatorEntry struct {
	PubKey string `yaml:"pubkey"`
}

// NodeConfig is the yaml node configuration.
type NodeConfig struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`
	DataDir       string `yaml:"data_dir"`
	Backend       string `yaml:"backend"` // leveldb | bolt | memory

	KeyFile           string          `yaml:"key_file"`
	LegacyPrefix      string          `yaml:"legacy_prefix"`
	MultiOperator     bool            `yaml:"multi_operator"`
	Quorum            int             `yaml:"quorum"`
	Operators         []OperatorEntry `yaml:"operators"`
	RequireSignatures bool            `yaml:"require_signatures"`

	P2PNodeURL       string `yaml:"p2p_node_url"`
	AnchoringEnabled bool   `yaml:"anchoring_enabled"`
}

// LoadNodeConfig reads and parses the node yaml file
func LoadNodeConfig(path string) (*NodeConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open node config: %w", err)
	}
	defer file.Close()

	var cfg NodeConfig
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode node config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":7741"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Backend == "" {
		cfg.Backend = "leveldb"
	}
	return &cfg, nil
}

// ChainTunables are the ini-configured batching and finality knobs.
type ChainTunables struct {
	BatchSize         int `ini:"batch_size"`
	BatchTimeoutMs    int `ini:"batch_timeout_ms"`
	FinalityTimeoutMs int `ini:"finality_timeout_ms"`
}

// LoadChainTunables reads chain tunables from an .ini file. An empty path
// returns zero tunables, leaving the chain defaults in place.
func LoadChainTunables(path string) (*ChainTunables, error) {
	tunables := &ChainTunables{}
	if path == "" {
		return tunables, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain tunables: %w", err)
	}
	if err := cfg.Section("chain").MapTo(tunables); err != nil {
		return nil, fmt.Errorf("failed to map chain tunables: %w", err)
	}
	return tunables, nil
}

// LoadEd25519PrivKey loads an Ed25519 private key from a file (expects hex encoding)
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key file: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: %d", len(key))
	}
	return ed25519.PrivateKey(key), nil
}

// WriteEd25519PrivKey writes a private key hex-encoded to path.
func WriteEd25519PrivKey(path string, key ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600)
}
