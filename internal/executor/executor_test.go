package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate/emulatetest"
	"github.com/xssnick/tonutils-contract-executor/internal/pool"
	"github.com/xssnick/tonutils-contract-executor/internal/stack"
	"github.com/xssnick/tonutils-contract-executor/metrics"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func TestMain(m *testing.M) {
	metrics.InitMetrics("test", "executor")
	m.Run()
}

func doubleMachine() *emulatetest.Machine {
	return emulatetest.NewMachine().Handle("double", func(call *emulatetest.Call) (*emulatetest.Reply, error) {
		v := call.Stack[0].(*big.Int)
		return &emulatetest.Reply{Stack: []any{new(big.Int).Mul(v, big.NewInt(2))}}, nil
	})
}

func doubleRequest(t *testing.T, v int64) *emulate.Request {
	args, err := stack.EncodeStack([]any{big.NewInt(v)})
	require.NoError(t, err)

	empty := stack.ToBase64(cell.BeginCell().EndCell())
	return &emulate.Request{
		FunctionSelector: emulate.MethodID("double"),
		InitStack:        args,
		Code:             empty,
		Data:             empty,
		C7:               emulate.TupleEntry(),
		GasLimit:         emulate.GasUnlimited,
		GasMax:           emulate.GasUnlimited,
		GasCredit:        emulate.GasUnlimited,
	}
}

func requireDoubled(t *testing.T, res emulate.Result, v int64) {
	ok, isOk := res.(*emulate.OkResult)
	require.True(t, isOk, "unexpected result %T", res)

	st, err := stack.DecodeStack(ok.Stack)
	require.NoError(t, err)
	require.Len(t, st, 1)
	require.EqualValues(t, v*2, st[0].(*big.Int).Int64())
}

func TestBackends(t *testing.T) {
	for name, b := range map[string]Backend{
		"direct": NewDirect(doubleMachine()),
		"pooled": NewPooled(pool.NewPool(2, func() (emulate.Interpreter, error) {
			return doubleMachine(), nil
		})),
	} {
		t.Run(name, func(t *testing.T) {
			reqs := make([]*emulate.Request, 50)
			for i := range reqs {
				reqs[i] = doubleRequest(t, int64(i))
			}

			results := make([]emulate.Result, len(reqs))

			var wg sync.WaitGroup
			for i := range reqs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := b.Execute(context.Background(), reqs[i])
					if err != nil {
						t.Errorf("execute failed: %v", err)
						return
					}
					results[i] = res
				}(i)
			}
			wg.Wait()

			for i, res := range results {
				requireDoubled(t, res, int64(i))
			}
		})
	}

	require.Greater(t, testutil.ToFloat64(metrics.Global.ExitCodes.WithLabelValues("0")), float64(0))
}

func TestDirectSerializesCalls(t *testing.T) {
	m := doubleMachine()
	d := NewDirect(m)

	req := doubleRequest(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Execute(context.Background(), req)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 20, m.Runs())
	require.EqualValues(t, 1, m.MaxConcurrent())
}

func TestDirectCanceled(t *testing.T) {
	m := doubleMachine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDirect(m).Execute(ctx, doubleRequest(t, 1))
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 0, m.Runs())
}

func TestDirectInterpreterError(t *testing.T) {
	m := emulatetest.NewMachine().Handle("double", func(call *emulatetest.Call) (*emulatetest.Reply, error) {
		return nil, fmt.Errorf("vm crashed")
	})

	for name, b := range map[string]Backend{
		"direct": NewDirect(m),
		"pooled": NewPooled(pool.NewPool(1, func() (emulate.Interpreter, error) {
			return m, nil
		})),
	} {
		t.Run(name, func(t *testing.T) {
			res, err := b.Execute(context.Background(), doubleRequest(t, 1))
			require.NoError(t, err)

			fail, ok := res.(*emulate.FailResult)
			require.True(t, ok, "unexpected result %T", res)
			require.Contains(t, fail.Error, "vm crashed")
			require.Nil(t, fail.ExitCode)
		})
	}
}

func TestShared(t *testing.T) {
	require.GreaterOrEqual(t, DefaultPoolSize(), 2)

	s := Shared()
	require.Same(t, s, Shared())
	require.Equal(t, 0, s.Pool().Size())

	require.NoError(t, CloseShared())
	require.NotSame(t, s, Shared())
	require.NoError(t, CloseShared())
	require.NoError(t, CloseShared())
}
