package executor

import (
	"context"
	"errors"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/pool"
	"github.com/xssnick/tonutils-contract-executor/metrics"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// Backend executes one request and returns vm result.
type Backend interface {
	Execute(ctx context.Context, req *emulate.Request) (emulate.Result, error)
}

// Direct calls a single interpreter, calls are serialized since interpreter is not reentrant.
type Direct struct {
	vm emulate.Interpreter
	mx sync.Mutex
}

func NewDirect(vm emulate.Interpreter) *Direct {
	return &Direct{vm: vm}
}

func (d *Direct) Execute(ctx context.Context, req *emulate.Request) (res emulate.Result, err error) {
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	tm := time.Now()
	defer func() {
		observe("direct", res, err, tm)
	}()

	d.mx.Lock()
	defer d.mx.Unlock()

	res, err = d.vm.Run(req)
	if err != nil {
		log.Warn().Err(err).Msg("vm execution failed")
		return &emulate.FailResult{Error: err.Error()}, nil
	}
	return res, nil
}

// Pooled submits requests to a pool of execution units.
type Pooled struct {
	pool *pool.Pool
}

func NewPooled(p *pool.Pool) *Pooled {
	return &Pooled{pool: p}
}

func (p *Pooled) Execute(ctx context.Context, req *emulate.Request) (res emulate.Result, err error) {
	tm := time.Now()
	defer func() {
		observe("pool", res, err, tm)
	}()

	return p.pool.Execute(ctx, req)
}

func (p *Pooled) Pool() *pool.Pool {
	return p.pool
}

var (
	shared   *Pooled
	sharedMx sync.Mutex
)

// DefaultPoolSize is a size of shared pool, half of cpus but at least 2.
func DefaultPoolSize() int {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	return n
}

// Shared returns process-wide pooled backend over native vm, created on first use.
// Callers who need isolation should build their own pool with NewPooled.
func Shared() *Pooled {
	sharedMx.Lock()
	defer sharedMx.Unlock()

	if shared == nil {
		size := DefaultPoolSize()
		shared = NewPooled(pool.NewPool(size, emulate.NewNative))
		log.Debug().Int("size", size).Msg("shared execution pool initialized")
	}
	return shared
}

// CloseShared stops units of the shared pool, next Shared call will create it again.
func CloseShared() error {
	sharedMx.Lock()
	defer sharedMx.Unlock()

	if shared == nil {
		return nil
	}

	if err := shared.pool.Close(); err != nil {
		return err
	}
	shared = nil
	return nil
}

func observe(backend string, res emulate.Result, err error, tm time.Time) {
	status := "ok"
	switch r := res.(type) {
	case *emulate.OkResult:
		if metrics.Global != nil {
			metrics.Global.ExitCodes.WithLabelValues(strconv.Itoa(int(r.ExitCode))).Add(1)
		}
		log.Debug().Str("backend", backend).Int32("exit_code", r.ExitCode).
			Int64("gas", r.GasConsumed).Dur("took", time.Since(tm)).Msg("execution done")
	case *emulate.FailResult:
		status = "vm_failed"
		log.Debug().Str("backend", backend).Str("reason", r.Error).Msg("vm rejected request")
	}

	if err != nil {
		status = "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = "canceled"
		}
	}

	if metrics.Global != nil {
		metrics.Global.Executions.WithLabelValues(backend, status).Observe(time.Since(tm).Seconds())
	}
}
