package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-contract-executor/config"
	"github.com/xssnick/tonutils-contract-executor/metrics"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tl"
	"github.com/xssnick/tonutils-go/ton"
	"reflect"
	"sync/atomic"
	"time"
)

type BalancerType string

const (
	BalancerTypeRoundRobin BalancerType = "round_robin"
	BalancerTypeFailOver   BalancerType = "fail_over"
)

const queryTimeout = 10 * time.Second

// Backend is a liteserver connection with its health stats.
type Backend struct {
	Name   string
	Client ton.LiteClient

	failsStreak uint64
	lastRequest int64
	lastSuccess int64
}

type BackendBalancer struct {
	backends []*Backend

	balancerType BalancerType
	counter      uint64
}

// NewBackendBalancer connects to every configured liteserver, unreachable ones are skipped.
func NewBackendBalancer(ctx context.Context, backends []config.BackendLiteserver, typ BalancerType) (*BackendBalancer, error) {
	var list []*Backend
	for _, backend := range backends {
		client := liteclient.NewConnectionPool()
		if err := client.AddConnection(ctx, backend.Addr, base64.StdEncoding.EncodeToString(backend.Key)); err != nil {
			log.Error().Err(err).Str("backend", backend.Addr).Msg("failed to connect")
			continue
		}

		list = append(list, &Backend{
			Name:   backend.Name,
			Client: client,
		})
		log.Info().Str("backend", backend.Addr).Msg("connected to backend")
	}
	return newBalancer(list, typ)
}

func newBalancer(backends []*Backend, typ BalancerType) (*BackendBalancer, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("no active backends")
	}

	switch typ {
	case BalancerTypeFailOver, BalancerTypeRoundRobin:
	default:
		return nil, fmt.Errorf("unknown balancer type: %s", typ)
	}

	return &BackendBalancer{
		backends:     backends,
		balancerType: typ,
	}, nil
}

func (b *BackendBalancer) GetClient() ton.LiteClient {
	if b.balancerType == BalancerTypeFailOver {
		for _, backend := range b.backends {
			if backend.failed() {
				continue
			}
			return backend
		}
		// all nodes failed, round-robin gives them a chance to become alive
	}

	x := atomic.AddUint64(&b.counter, 1)
	return b.backends[x%uint64(len(b.backends))]
}

// QueryLiteserver sends query to the backend picked by balancer.
func (b *BackendBalancer) QueryLiteserver(ctx context.Context, payload tl.Serializable, result tl.Serializable) error {
	return b.GetClient().QueryLiteserver(ctx, payload, result)
}

func (b *BackendBalancer) StickyContext(ctx context.Context) context.Context {
	return ctx
}

func (b *BackendBalancer) StickyContextNextNode(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (b *BackendBalancer) StickyNodeID(ctx context.Context) uint32 {
	return 0
}

func (b *Backend) failed() bool {
	return atomic.LoadUint64(&b.failsStreak) > 10 &&
		atomic.LoadInt64(&b.lastRequest)-atomic.LoadInt64(&b.lastSuccess) > 5
}

func (b *Backend) QueryLiteserver(ctx context.Context, payload tl.Serializable, result tl.Serializable) (err error) {
	tm := time.Now()
	defer func() {
		atomic.StoreInt64(&b.lastRequest, time.Now().Unix())
		status := "ok"
		if err != nil {
			if errors.Is(err, context.Canceled) {
				// canceled by caller, backend is fine
				return
			}
			atomic.AddUint64(&b.failsStreak, 1)
			status = "failed"
			log.Debug().Err(err).Str("name", b.Name).Msg("backend query failed")
		} else if ls, ok := lsError(result); ok {
			atomic.AddUint64(&b.failsStreak, 1)
			status = "ls_error"
			log.Debug().Str("name", b.Name).Str("reason", ls.Text).Int32("code", ls.Code).Msg("backend query ls error")
		} else {
			atomic.StoreUint64(&b.failsStreak, 0)
			atomic.StoreInt64(&b.lastSuccess, atomic.LoadInt64(&b.lastRequest))
		}

		if metrics.Global != nil {
			metrics.Global.BackendQueries.WithLabelValues(b.Name, reflect.TypeOf(payload).String(), status).Observe(time.Since(tm).Seconds())
		}
	}()

	if dl, ok := ctx.Deadline(); !ok || dl.After(time.Now().Add(queryTimeout)) {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, queryTimeout)
		defer cancel()
	}

	return b.Client.QueryLiteserver(ctx, payload, result)
}

func (b *Backend) StickyContext(ctx context.Context) context.Context {
	return b.Client.StickyContext(ctx)
}

func (b *Backend) StickyContextNextNode(ctx context.Context) (context.Context, error) {
	return b.Client.StickyContextNextNode(ctx)
}

func (b *Backend) StickyNodeID(ctx context.Context) uint32 {
	return b.Client.StickyNodeID(ctx)
}

func lsError(result tl.Serializable) (ton.LSError, bool) {
	if p, ok := result.(*tl.Serializable); ok && p != nil {
		result = *p
	}
	ls, ok := result.(ton.LSError)
	return ls, ok
}
