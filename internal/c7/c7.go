package c7

import (
	"crypto/rand"
	"fmt"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/stack"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"math/big"
	"time"
)

const Magic = 0x076ef1ea

var DefaultBalance = big.NewInt(1000)

// Config is a set of overrides for smart contract info,
// nil fields are replaced with defaults on every Prepare call.
type Config struct {
	UnixTime     *uint32
	Balance      *big.Int
	Address      *address.Address
	RandSeed     *big.Int
	Actions      *uint32
	MessagesSent *uint32
	BlockLT      *uint64
	TxLT         *uint64
	GlobalConfig *cell.Cell
}

func (c Config) WithUnixTime(tm uint32) Config {
	c.UnixTime = &tm
	return c
}

func (c Config) WithBalance(balance *big.Int) Config {
	c.Balance = balance
	return c
}

func (c Config) WithRandSeed(seed *big.Int) Config {
	c.RandSeed = seed
	return c
}

// ResolvedBalance is balance which contract will see when nothing else is added to it.
func (c Config) ResolvedBalance() *big.Int {
	if c.Balance != nil {
		return new(big.Int).Set(c.Balance)
	}
	return new(big.Int).Set(DefaultBalance)
}

// Prepare builds c7 register value: tuple with a single SmartContractInfo tuple inside.
//
//	[ magic:0x076ef1ea actions:Integer msgs_sent:Integer unixtime:Integer
//	  block_lt:Integer trans_lt:Integer rand_seed:Integer
//	  balance_remaining:[Integer (Maybe Cell)] myself:MsgAddressInt global_config:(Maybe Cell) ]
func Prepare(cfg Config) (emulate.StackEntry, error) {
	now := uint32(time.Now().Unix())
	if cfg.UnixTime != nil {
		now = *cfg.UnixTime
	}

	seed := cfg.RandSeed
	if seed == nil {
		var err error
		if seed, err = RandomSeed(); err != nil {
			return emulate.StackEntry{}, err
		}
	}

	addr := cfg.Address
	if addr == nil {
		addr = address.NewAddress(0, 0, make([]byte, 32))
	}

	addrCell := cell.BeginCell()
	if err := addrCell.StoreAddr(addr); err != nil {
		return emulate.StackEntry{}, fmt.Errorf("failed to store own address: %w", err)
	}

	globalConfig := cfg.GlobalConfig
	if globalConfig == nil {
		globalConfig = cell.BeginCell().EndCell()
	}

	blockLT, txLT := uint64(now), uint64(now)
	if cfg.BlockLT != nil {
		blockLT = *cfg.BlockLT
	}
	if cfg.TxLT != nil {
		txLT = *cfg.TxLT
	}

	info, err := stack.EncodeStack([]any{
		big.NewInt(Magic),
		uint32OrZero(cfg.Actions),
		uint32OrZero(cfg.MessagesSent),
		now,
		blockLT,
		txLT,
		seed,
		[]any{cfg.ResolvedBalance(), nil}, // extra currencies are not supported
		addrCell.EndCell().BeginParse(),
		globalConfig,
	})
	if err != nil {
		return emulate.StackEntry{}, fmt.Errorf("failed to encode smart contract info: %w", err)
	}

	return emulate.TupleEntry(emulate.TupleEntry(info...)), nil
}

func RandomSeed() (*big.Int, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate random seed: %w", err)
	}
	return new(big.Int).SetBytes(seed), nil
}

func uint32OrZero(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}
