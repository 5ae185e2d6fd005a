package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate/emulatetest"
	"github.com/xssnick/tonutils-contract-executor/internal/stack"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func echoRequest(t testing.TB, v int64) *emulate.Request {
	t.Helper()

	empty := stack.ToBase64(cell.BeginCell().EndCell())
	args, err := stack.EncodeStack([]any{big.NewInt(v)})
	require.NoError(t, err)

	return &emulate.Request{
		FunctionSelector: emulate.MethodID("echo"),
		InitStack:        args,
		Code:             empty,
		Data:             empty,
		C7:               emulate.TupleEntry(),
		GasLimit:         emulate.GasUnlimited,
		GasMax:           emulate.GasUnlimited,
		GasCredit:        emulate.GasUnlimited,
	}
}

func echoHandler(delay time.Duration) emulatetest.Handler {
	return func(call *emulatetest.Call) (*emulatetest.Reply, error) {
		if delay > 0 {
			time.Sleep(delay)
		}
		return &emulatetest.Reply{Stack: call.Stack}, nil
	}
}

type countingFactory struct {
	created  int64
	machines []*emulatetest.Machine
	handler  emulatetest.Handler
	mx       sync.Mutex
}

func (f *countingFactory) New() (emulate.Interpreter, error) {
	atomic.AddInt64(&f.created, 1)
	m := emulatetest.NewMachine().Handle("echo", f.handler)

	f.mx.Lock()
	f.machines = append(f.machines, m)
	f.mx.Unlock()
	return m, nil
}

func resultValue(t *testing.T, res emulate.Result) int64 {
	ok, isOk := res.(*emulate.OkResult)
	if !isOk {
		t.Errorf("unexpected result %T", res)
		return -1
	}

	st, err := stack.DecodeStack(ok.Stack)
	if err != nil || len(st) != 1 {
		t.Errorf("unexpected stack %v: %v", ok.Stack, err)
		return -1
	}
	return st[0].(*big.Int).Int64()
}

func TestPoolFanOut(t *testing.T) {
	f := &countingFactory{handler: echoHandler(0)}
	p := NewPool(2, f.New)

	const n = 1000
	results := make([]int64, n)
	reqs := make([]*emulate.Request, n)
	for i := range reqs {
		reqs[i] = echoRequest(t, int64(i))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			res, err := p.Execute(context.Background(), reqs[i])
			if err != nil {
				t.Errorf("execute %d failed: %v", i, err)
				return
			}
			results[i] = resultValue(t, res)
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		require.EqualValues(t, i, v, "result of request %d belongs to another request", i)
	}

	require.LessOrEqual(t, atomic.LoadInt64(&f.created), int64(2))
	require.Equal(t, 0, p.InFlight())

	// every unit runs one task at a time
	for _, m := range f.machines {
		require.EqualValues(t, 1, m.MaxConcurrent())
	}

	require.NoError(t, p.Close())
}

func TestPoolGrowthBound(t *testing.T) {
	f := &countingFactory{handler: echoHandler(2 * time.Millisecond)}
	p := NewPool(3, f.New)

	reqs := make([]*emulate.Request, 300)
	for i := range reqs {
		reqs[i] = echoRequest(t, int64(i))
	}

	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Execute(context.Background(), reqs[i])
			if err != nil {
				t.Errorf("execute %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 3, atomic.LoadInt64(&f.created))
	require.Equal(t, 3, p.Size())
	require.NoError(t, p.Close())
}

func TestPoolNoSpeculativeGrowth(t *testing.T) {
	f := &countingFactory{handler: echoHandler(0)}
	p := NewPool(4, f.New)
	require.Equal(t, 0, p.Size())

	// sequential requests never have anything in flight, so one unit is enough
	for i := 0; i < 10; i++ {
		res, err := p.Execute(context.Background(), echoRequest(t, int64(i)))
		require.NoError(t, err)
		require.EqualValues(t, i, resultValue(t, res))
	}
	require.Equal(t, 1, p.Size())
	require.EqualValues(t, 1, atomic.LoadInt64(&f.created))
}

func TestPoolCloseBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	p := NewPool(1, func() (emulate.Interpreter, error) {
		return emulatetest.NewMachine().Handle("echo", func(call *emulatetest.Call) (*emulatetest.Reply, error) {
			started <- struct{}{}
			<-release
			return &emulatetest.Reply{Stack: call.Stack}, nil
		}), nil
	})

	req := echoRequest(t, 7)
	done := make(chan emulate.Result, 1)
	go func() {
		res, err := p.Execute(context.Background(), req)
		if err != nil {
			t.Errorf("execute failed: %v", err)
		}
		done <- res
	}()

	<-started
	require.False(t, p.CanClose())
	require.ErrorIs(t, p.Close(), ErrBusy)

	close(release)
	require.EqualValues(t, 7, resultValue(t, <-done))

	require.True(t, p.CanClose())
	require.NoError(t, p.Close())
	require.Equal(t, 0, p.Size())
}

func TestPoolReuseAfterClose(t *testing.T) {
	f := &countingFactory{handler: echoHandler(0)}
	p := NewPool(2, f.New)

	_, err := p.Execute(context.Background(), echoRequest(t, 1))
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.Equal(t, 0, p.Size())

	res, err := p.Execute(context.Background(), echoRequest(t, 2))
	require.NoError(t, err)
	require.EqualValues(t, 2, resultValue(t, res))
	require.Equal(t, 1, p.Size())
	require.EqualValues(t, 2, atomic.LoadInt64(&f.created))
}

func TestPoolContextCancel(t *testing.T) {
	release := make(chan struct{})
	p := NewPool(1, func() (emulate.Interpreter, error) {
		return emulatetest.NewMachine().Handle("echo", func(call *emulatetest.Call) (*emulatetest.Reply, error) {
			<-release
			return &emulatetest.Reply{Stack: call.Stack}, nil
		}), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Execute(ctx, echoRequest(t, 1))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// task is still owned by the pool until unit answers
	require.Equal(t, 1, p.InFlight())
	require.ErrorIs(t, p.Close(), ErrBusy)

	close(release)
	require.Eventually(t, p.CanClose, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Close())
}

func TestPoolInterpreterError(t *testing.T) {
	p := NewPool(1, func() (emulate.Interpreter, error) {
		return emulatetest.NewMachine().Handle("echo", func(call *emulatetest.Call) (*emulatetest.Reply, error) {
			return nil, fmt.Errorf("vm crashed")
		}), nil
	})

	res, err := p.Execute(context.Background(), echoRequest(t, 1))
	require.NoError(t, err)

	fail, ok := res.(*emulate.FailResult)
	require.True(t, ok)
	require.Equal(t, "vm crashed", fail.Error)
}

func TestPoolFactoryError(t *testing.T) {
	p := NewPool(2, func() (emulate.Interpreter, error) {
		return nil, emulate.ErrNotCompiled
	})

	_, err := p.Execute(context.Background(), echoRequest(t, 1))
	require.ErrorIs(t, err, emulate.ErrNotCompiled)
	require.Equal(t, 0, p.InFlight())
	require.True(t, p.CanClose())
}

func TestPoolUnknownResponse(t *testing.T) {
	p := NewPool(1, nil)
	err := p.complete(42, &emulate.OkResult{})
	require.True(t, errors.Is(err, ErrUnknownTask))
}
