package chain

import (
	"context"
	"errors"
	"fmt"
	lru "github.com/hashicorp/golang-lru"
	"github.com/kevinms/leakybucket-go"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-contract-executor/internal/c7"
	"github.com/xssnick/tonutils-contract-executor/internal/contract"
	"github.com/xssnick/tonutils-contract-executor/internal/executor"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tl"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"math/big"
	"time"
)

var ErrNotInitialized = errors.New("contract is not initialized")
var ErrRateLimited = errors.New("too many liteserver queries")

// Snapshot is a state of deployed account at some master block.
type Snapshot struct {
	Address *address.Address
	Block   *ton.BlockIDExt
	Code    *cell.Cell
	Data    *cell.Cell
	Balance *big.Int
	// Config is a root of blockchain config dictionary, nil when it was not loaded
	Config *cell.Cell
}

type LoaderConfig struct {
	MaxQueriesPerSec  float64
	QueriesBurst      int64
	MaxCachedAccounts int
	LoadGlobalConfig  bool
}

// Loader fetches account snapshots from liteservers, snapshots are cached per block.
type Loader struct {
	client     ton.LiteClient
	loadConfig bool

	limiter  *leakybucket.LeakyBucket
	accounts *lru.ARCCache
	configs  *lru.ARCCache
}

func NewLoader(client ton.LiteClient, cfg LoaderConfig) (*Loader, error) {
	l := &Loader{
		client:     client,
		loadConfig: cfg.LoadGlobalConfig,
	}

	if cfg.QueriesBurst > 0 {
		l.limiter = leakybucket.NewLeakyBucket(cfg.MaxQueriesPerSec, cfg.QueriesBurst)
	}

	if cfg.MaxCachedAccounts > 0 {
		var err error
		if l.accounts, err = lru.NewARC(cfg.MaxCachedAccounts); err != nil {
			return nil, fmt.Errorf("failed to init accounts cache: %w", err)
		}
		if l.configs, err = lru.NewARC(4); err != nil {
			return nil, fmt.Errorf("failed to init config cache: %w", err)
		}
	}
	return l, nil
}

// Load returns account state at the last master block.
func (l *Loader) Load(ctx context.Context, addr *address.Address) (*Snapshot, error) {
	if err := l.acquire(1); err != nil {
		return nil, err
	}

	inf, err := getMasterchainInfo(ctx, l.client)
	if err != nil {
		return nil, fmt.Errorf("failed to get masterchain info: %w", err)
	}
	return l.LoadAt(ctx, inf.Last, addr)
}

func (l *Loader) LoadAt(ctx context.Context, block *ton.BlockIDExt, addr *address.Address) (*Snapshot, error) {
	key := fmt.Sprint(block.SeqNo) + ":" + addr.String()
	if l.accounts != nil {
		if snap, ok := l.accounts.Get(key); ok {
			log.Debug().Str("addr", addr.String()).Uint32("seqno", block.SeqNo).Msg("account snapshot from cache")
			return snap.(*Snapshot), nil
		}
	}

	if err := l.acquire(1); err != nil {
		return nil, err
	}

	tm := time.Now()
	state, err := getAccount(ctx, l.client, block, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if state.State == nil {
		return nil, ErrNotInitialized
	}

	var acc tlb.AccountState
	if err = acc.LoadFromCell(state.State.BeginParse()); err != nil {
		return nil, fmt.Errorf("failed to parse account state: %w", err)
	}

	if !acc.IsValid || acc.StateInit == nil || acc.StateInit.Code == nil {
		return nil, ErrNotInitialized
	}

	data := acc.StateInit.Data
	if data == nil {
		data = cell.BeginCell().EndCell()
	}

	snap := &Snapshot{
		Address: addr,
		Block:   block,
		Code:    acc.StateInit.Code,
		Data:    data,
		Balance: acc.Balance.Nano(),
	}

	if l.loadConfig {
		if snap.Config, err = l.globalConfig(ctx, block); err != nil {
			return nil, fmt.Errorf("failed to get blockchain config: %w", err)
		}
	}

	log.Debug().Str("addr", addr.String()).Uint32("seqno", block.SeqNo).
		Hex("code_hash", snap.Code.Hash()).Dur("took", time.Since(tm)).Msg("account snapshot loaded")

	if l.accounts != nil {
		l.accounts.Add(key, snap)
	}
	return snap, nil
}

func (l *Loader) globalConfig(ctx context.Context, block *ton.BlockIDExt) (*cell.Cell, error) {
	if l.configs != nil {
		if c, ok := l.configs.Get(block.SeqNo); ok {
			return c.(*cell.Cell), nil
		}
	}

	if err := l.acquire(1); err != nil {
		return nil, err
	}

	dict, err := getBlockchainConfig(ctx, l.client, block)
	if err != nil {
		return nil, err
	}

	root := dict.AsCell()
	if root == nil {
		root = cell.BeginCell().EndCell()
	}

	if l.configs != nil {
		l.configs.Add(block.SeqNo, root)
	}
	return root, nil
}

func (l *Loader) acquire(cost int64) error {
	if l.limiter != nil && l.limiter.Add(cost) != cost {
		return ErrRateLimited
	}
	return nil
}

// ContextConfig returns context overrides which make contract see itself as on chain.
func (s *Snapshot) ContextConfig() c7.Config {
	return c7.Config{
		Address:      s.Address,
		Balance:      new(big.Int).Set(s.Balance),
		GlobalConfig: s.Config,
	}
}

// Contract creates local contract from snapshot, changes made to it are not sent anywhere.
func (s *Snapshot) Contract(backend executor.Backend, cfg contract.Config) *contract.SmartContract {
	smc := contract.New(s.Code, s.Data, backend, cfg)
	smc.SetC7Config(s.ContextConfig())
	return smc
}

func getAccount(ctx context.Context, client ton.LiteClient, block *ton.BlockIDExt, addr *address.Address) (*ton.AccountState, error) {
	var resp tl.Serializable
	err := client.QueryLiteserver(ctx, ton.GetAccountState{
		ID: block,
		Account: ton.AccountID{
			Workchain: addr.Workchain(),
			ID:        addr.Data(),
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	switch t := resp.(type) {
	case ton.AccountState:
		if !t.ID.Equals(block) {
			return nil, fmt.Errorf("response with incorrect block")
		}
		return &t, nil
	case ton.LSError:
		return nil, t
	}
	return nil, fmt.Errorf("unexpected response")
}

func getMasterchainInfo(ctx context.Context, client ton.LiteClient) (*ton.MasterchainInfo, error) {
	var resp tl.Serializable
	if err := client.QueryLiteserver(ctx, ton.GetMasterchainInf{}, &resp); err != nil {
		return nil, err
	}

	switch t := resp.(type) {
	case ton.MasterchainInfo:
		return &t, nil
	case ton.LSError:
		return nil, t
	}
	return nil, fmt.Errorf("unexpected response")
}

func getBlockchainConfig(ctx context.Context, client ton.LiteClient, block *ton.BlockIDExt) (*cell.Dictionary, error) {
	var resp tl.Serializable
	err := client.QueryLiteserver(ctx, ton.GetConfigAll{
		Mode:    0b1111111111,
		BlockID: block,
	}, &resp)
	if err != nil {
		return nil, err
	}

	switch t := resp.(type) {
	case ton.ConfigAll:
		stateExtra, err := ton.CheckShardMcStateExtraProof(block, []*cell.Cell{t.StateProof, t.ConfigProof})
		if err != nil {
			return nil, fmt.Errorf("incorrect proof: %w", err)
		}
		return stateExtra.ConfigParams.Config.Params, nil
	case ton.LSError:
		return nil, t
	}
	return nil, fmt.Errorf("unexpected response from node")
}
