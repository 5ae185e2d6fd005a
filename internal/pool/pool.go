package pool

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/metrics"
	"io"
	"sync"
)

var ErrBusy = errors.New("pool has tasks in flight, cannot close now")
var ErrUnknownTask = errors.New("no task was found for response")

// Factory creates isolated vm instance for a new unit.
type Factory func() (emulate.Interpreter, error)

type task struct {
	id     uint64
	req    *emulate.Request
	result chan emulate.Result
}

type unit struct {
	idx   int
	vm    emulate.Interpreter
	queue chan *task
	done  chan struct{}
}

// Pool spreads requests over units, every unit executes one request at a time.
// Units are created lazily: first one on the first request, next ones only
// when there are unanswered tasks, up to maxSize.
type Pool struct {
	maxSize int
	factory Factory

	reqNo    uint64
	units    []*unit
	tasks    map[uint64]*task
	inflight int

	mx sync.Mutex
}

func NewPool(maxSize int, factory Factory) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}

	return &Pool{
		maxSize: maxSize,
		factory: factory,
		tasks:   map[uint64]*task{},
	}
}

// Execute runs request on one of units and waits for its result.
// Canceled context stops only the waiting, task stays in flight until unit answers.
func (p *Pool) Execute(ctx context.Context, req *emulate.Request) (emulate.Result, error) {
	p.mx.Lock()
	id := p.reqNo

	var u *unit
	if len(p.units) == 0 || (len(p.units) < p.maxSize && p.inflight > 0) {
		var err error
		if u, err = p.addUnit(); err != nil {
			p.mx.Unlock()
			return nil, fmt.Errorf("failed to create execution unit: %w", err)
		}
	} else {
		u = p.units[id%uint64(len(p.units))]
	}
	p.reqNo++

	t := &task{
		id:     id,
		req:    req,
		result: make(chan emulate.Result, 1),
	}
	p.tasks[id] = t
	p.inflight++
	p.mx.Unlock()

	if metrics.Global != nil {
		metrics.Global.InflightTasks.Add(1)
	}

	log.Debug().Uint64("id", id).Int("unit", u.idx).Msg("task submitted")
	// task must reach the unit even if caller is gone, otherwise it will be in flight forever
	u.queue <- t

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-t.result:
		return res, nil
	}
}

func (p *Pool) addUnit() (*unit, error) {
	vm, err := p.factory()
	if err != nil {
		return nil, err
	}

	u := &unit{
		idx:   len(p.units),
		vm:    vm,
		queue: make(chan *task),
		done:  make(chan struct{}),
	}
	p.units = append(p.units, u)
	go p.runUnit(u)

	if metrics.Global != nil {
		metrics.Global.PoolUnits.Add(1)
	}
	log.Debug().Int("units", len(p.units)).Int("max", p.maxSize).Msg("execution unit added")

	return u, nil
}

func (p *Pool) runUnit(u *unit) {
	defer close(u.done)

	for t := range u.queue {
		res, err := u.vm.Run(t.req)
		if err != nil {
			log.Warn().Err(err).Uint64("id", t.id).Int("unit", u.idx).Msg("vm execution failed")
			res = &emulate.FailResult{Error: err.Error()}
		}

		if err = p.complete(t.id, res); err != nil {
			log.Panic().Err(err).Uint64("id", t.id).Msg("pool internal state is broken")
		}
	}
}

func (p *Pool) complete(id uint64, res emulate.Result) error {
	p.mx.Lock()
	t := p.tasks[id]
	if t == nil {
		p.mx.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	delete(p.tasks, id)
	p.inflight--
	p.mx.Unlock()

	if metrics.Global != nil {
		metrics.Global.InflightTasks.Sub(1)
	}

	t.result <- res
	return nil
}

func (p *Pool) CanClose() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.inflight == 0
}

// Size returns current number of units.
func (p *Pool) Size() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.units)
}

func (p *Pool) InFlight() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.inflight
}

// Close stops all units, pool can be used again after it and will grow from zero.
func (p *Pool) Close() error {
	p.mx.Lock()
	if p.inflight > 0 {
		p.mx.Unlock()
		return ErrBusy
	}
	units := p.units
	p.units = nil
	p.mx.Unlock()

	var closeErr error
	for _, u := range units {
		close(u.queue)
		<-u.done

		if c, ok := u.vm.(io.Closer); ok {
			if err := c.Close(); err != nil && closeErr == nil {
				closeErr = fmt.Errorf("failed to close unit %d: %w", u.idx, err)
			}
		}
	}

	if metrics.Global != nil {
		metrics.Global.PoolUnits.Sub(float64(len(units)))
	}
	log.Debug().Int("units", len(units)).Msg("pool closed")

	return closeErr
}
