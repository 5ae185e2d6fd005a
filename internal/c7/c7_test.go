package c7

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/stack"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func prepareInfo(t *testing.T, cfg Config) []any {
	t.Helper()

	entry, err := Prepare(cfg)
	require.NoError(t, err)
	require.Equal(t, emulate.EntryTuple, entry.Type)
	require.Len(t, entry.Items, 1)

	v, err := stack.Decode(entry.Items[0])
	require.NoError(t, err)

	info, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, info, 10)
	return info
}

func intAt(t *testing.T, info []any, i int) *big.Int {
	t.Helper()
	v, ok := info[i].(*big.Int)
	require.True(t, ok, "field %d is %T", i, info[i])
	return v
}

func TestPrepareDefaults(t *testing.T) {
	before := time.Now().Unix()
	info := prepareInfo(t, Config{})
	after := time.Now().Unix()

	require.EqualValues(t, Magic, intAt(t, info, 0).Int64())
	require.EqualValues(t, 0, intAt(t, info, 1).Int64())
	require.EqualValues(t, 0, intAt(t, info, 2).Int64())

	now := intAt(t, info, 3).Int64()
	require.GreaterOrEqual(t, now, before)
	require.LessOrEqual(t, now, after)
	require.Equal(t, now, intAt(t, info, 4).Int64())
	require.Equal(t, now, intAt(t, info, 5).Int64())

	require.LessOrEqual(t, intAt(t, info, 6).BitLen(), 256)

	balance, ok := info[7].([]any)
	require.True(t, ok)
	require.Len(t, balance, 2)
	require.EqualValues(t, 1000, balance[0].(*big.Int).Int64())
	require.Nil(t, balance[1])

	addrSlice, ok := info[8].(*cell.Slice)
	require.True(t, ok)
	addr, err := addrSlice.LoadAddr()
	require.NoError(t, err)
	require.EqualValues(t, 0, addr.Workchain())
	require.Equal(t, make([]byte, 32), addr.Data())

	cfgCell, ok := info[9].(*cell.Cell)
	require.True(t, ok)
	require.Equal(t, cell.BeginCell().EndCell().Hash(), cfgCell.Hash())
}

func TestPrepareOverrides(t *testing.T) {
	addr := address.MustParseAddr("EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N")
	seed := big.NewInt(42)
	actions, sent := uint32(3), uint32(2)
	blockLT, txLT := uint64(100), uint64(101)
	gc := cell.BeginCell().MustStoreUInt(1, 8).EndCell()

	cfg := Config{
		Address:      addr,
		Actions:      &actions,
		MessagesSent: &sent,
		BlockLT:      &blockLT,
		TxLT:         &txLT,
		GlobalConfig: gc,
	}.WithUnixTime(1649373789).WithBalance(big.NewInt(5_000_000_000)).WithRandSeed(seed)

	info := prepareInfo(t, cfg)

	require.EqualValues(t, 3, intAt(t, info, 1).Int64())
	require.EqualValues(t, 2, intAt(t, info, 2).Int64())
	require.EqualValues(t, 1649373789, intAt(t, info, 3).Int64())
	require.EqualValues(t, 100, intAt(t, info, 4).Int64())
	require.EqualValues(t, 101, intAt(t, info, 5).Int64())
	require.EqualValues(t, 42, intAt(t, info, 6).Int64())
	require.EqualValues(t, 5_000_000_000, info[7].([]any)[0].(*big.Int).Int64())

	got, err := info[8].(*cell.Slice).LoadAddr()
	require.NoError(t, err)
	require.Equal(t, addr.Data(), got.Data())
	require.Equal(t, addr.Workchain(), got.Workchain())

	require.Equal(t, gc.Hash(), info[9].(*cell.Cell).Hash())
}

func TestPrepareFreshSeed(t *testing.T) {
	a := intAt(t, prepareInfo(t, Config{}), 6)
	b := intAt(t, prepareInfo(t, Config{}), 6)
	require.NotZero(t, a.Cmp(b))
}

func TestResolvedBalanceIsCopy(t *testing.T) {
	b := Config{}.ResolvedBalance()
	b.Add(b, big.NewInt(1))
	require.EqualValues(t, 1000, DefaultBalance.Int64())
}
