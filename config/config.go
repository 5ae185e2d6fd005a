package config

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/xssnick/tonutils-contract-executor/internal/c7"
	"github.com/xssnick/tonutils-go/address"
	"math/big"
	"os"
	"path/filepath"
)

type BackendLiteserver struct {
	Name string
	Addr string
	Key  []byte
}

type GasConfig struct {
	Limit  int64
	Max    int64
	Credit int64
}

// ContextConfig overrides smart contract info, empty values are generated on every call.
type ContextConfig struct {
	UnixTime     uint32
	Balance      string
	Address      string
	RandSeedHex  string
	Actions      uint32
	MessagesSent uint32
	BlockLT      uint64
	TxLT         uint64
}

type ChainConfig struct {
	MaxQueriesPerSec  float64
	QueriesBurst      int64
	MaxCachedAccounts int
	LoadGlobalConfig  bool
}

type Config struct {
	MetricsAddr      string
	MetricsNamespace string
	// PoolSize is a max number of vm units, 0 means half of cpus but at least 2
	PoolSize         int
	Debug            bool
	GetMethodsMutate bool
	Gas              GasConfig
	Context          ContextConfig
	Backends         []BackendLiteserver
	Chain            ChainConfig
}

func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if _, err = os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = os.MkdirAll(dir, os.ModePerm)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check directory: %w", err)
		}
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err = SaveConfig(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
		return cfg, nil
	} else if err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		var cfg Config
		if err = json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		if _, err = cfg.ContextConfig(); err != nil {
			return nil, fmt.Errorf("invalid context config: %w", err)
		}
		return &cfg, nil
	}

	return nil, err
}

func Default() *Config {
	exampleKey, _ := base64.StdEncoding.DecodeString("n4VDnSCUuSpjnCyUk9e3QOOd6o0ItSWYbTnW3Wnn8wk=")
	return &Config{
		MetricsAddr:      "0.0.0.0:8059",
		MetricsNamespace: "basic",
		Gas: GasConfig{
			Limit:  -1,
			Max:    -1,
			Credit: -1,
		},
		Backends: []BackendLiteserver{
			{
				Name: "default",
				Addr: "5.9.10.47:19949",
				Key:  exampleKey,
			},
		},
		Chain: ChainConfig{
			MaxQueriesPerSec:  20,
			QueriesBurst:      50,
			MaxCachedAccounts: 256,
			LoadGlobalConfig:  true,
		},
	}
}

func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, 0766)
	if err != nil {
		return err
	}
	return nil
}

// ContextConfig converts overrides to c7 config, zero values are left for defaults.
func (c *Config) ContextConfig() (c7.Config, error) {
	var res c7.Config
	ctx := c.Context

	if ctx.UnixTime > 0 {
		res = res.WithUnixTime(ctx.UnixTime)
	}

	if ctx.Balance != "" {
		balance, ok := new(big.Int).SetString(ctx.Balance, 10)
		if !ok {
			return c7.Config{}, fmt.Errorf("incorrect balance %q", ctx.Balance)
		}
		res = res.WithBalance(balance)
	}

	if ctx.Address != "" {
		addr, err := address.ParseAddr(ctx.Address)
		if err != nil {
			return c7.Config{}, fmt.Errorf("incorrect address: %w", err)
		}
		res.Address = addr
	}

	if ctx.RandSeedHex != "" {
		seed, err := hex.DecodeString(ctx.RandSeedHex)
		if err != nil || len(seed) != 32 {
			return c7.Config{}, fmt.Errorf("rand seed should be 32 bytes in hex")
		}
		res = res.WithRandSeed(new(big.Int).SetBytes(seed))
	}

	if ctx.Actions > 0 {
		v := ctx.Actions
		res.Actions = &v
	}
	if ctx.MessagesSent > 0 {
		v := ctx.MessagesSent
		res.MessagesSent = &v
	}
	if ctx.BlockLT > 0 {
		v := ctx.BlockLT
		res.BlockLT = &v
	}
	if ctx.TxLT > 0 {
		v := ctx.TxLT
		res.TxLT = &v
	}

	return res, nil
}
