// Package emulatetest provides an in-process Interpreter for tests.
// Contracts are described as go handlers per method, requests and responses
// still go through the same wire format as with the native vm.
package emulatetest

import (
	"encoding/base64"
	"fmt"
	"github.com/xssnick/tonutils-contract-executor/internal/actions"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/stack"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"sync"
	"sync/atomic"
)

const (
	ExitCodeOutOfGas      int32 = -14
	ExitCodeUnknownMethod int32 = 11
	defaultGasConsumed    int64 = 100
)

type Call struct {
	Selector int32
	Debug    bool
	Stack    []any
	Code     *cell.Cell
	Data     *cell.Cell
	C7       []any
	GasLimit int64
}

type Reply struct {
	ExitCode int32
	Stack    []any
	// Data is a new data cell, nil keeps it unchanged
	Data    *cell.Cell
	Actions []actions.OutAction
	Gas     int64
	Logs    string
	// Fail makes vm answer with ok false and this error
	Fail string
}

type Handler func(call *Call) (*Reply, error)

// Machine dispatches requests to handlers by function selector.
// It is safe for concurrent use when handlers are.
type Machine struct {
	methods map[int32]Handler

	runs      int64
	active    int64
	maxActive int64
	mx        sync.RWMutex
}

func NewMachine() *Machine {
	return &Machine{
		methods: map[int32]Handler{},
	}
}

func (m *Machine) Handle(method string, h Handler) *Machine {
	return m.HandleSelector(emulate.MethodID(method), h)
}

func (m *Machine) HandleSelector(selector int32, h Handler) *Machine {
	m.mx.Lock()
	m.methods[selector] = h
	m.mx.Unlock()
	return m
}

// Runs returns number of processed requests.
func (m *Machine) Runs() int64 {
	return atomic.LoadInt64(&m.runs)
}

// MaxConcurrent returns the highest number of requests processed at the same time.
func (m *Machine) MaxConcurrent() int64 {
	return atomic.LoadInt64(&m.maxActive)
}

func (m *Machine) Run(req *emulate.Request) (emulate.Result, error) {
	active := atomic.AddInt64(&m.active, 1)
	defer atomic.AddInt64(&m.active, -1)
	for {
		peak := atomic.LoadInt64(&m.maxActive)
		if active <= peak || atomic.CompareAndSwapInt64(&m.maxActive, peak, active) {
			break
		}
	}
	atomic.AddInt64(&m.runs, 1)

	call, err := parseCall(req)
	if err != nil {
		return &emulate.FailResult{Error: err.Error()}, nil
	}

	m.mx.RLock()
	h := m.methods[req.FunctionSelector]
	m.mx.RUnlock()

	if h == nil {
		return &emulate.OkResult{
			ExitCode: ExitCodeUnknownMethod,
			Stack:    []emulate.StackEntry{},
			Logs:     encodeLogs("unknown method"),
		}, nil
	}

	reply, err := h(call)
	if err != nil {
		return nil, err
	}

	if reply.Fail != "" {
		return &emulate.FailResult{Error: reply.Fail}, nil
	}

	gas := reply.Gas
	if gas == 0 {
		gas = defaultGasConsumed
	}
	if req.GasLimit >= 0 && gas > req.GasLimit {
		return &emulate.OkResult{
			ExitCode:    ExitCodeOutOfGas,
			GasConsumed: req.GasLimit,
			Stack:       []emulate.StackEntry{},
			Logs:        encodeLogs("out of gas"),
		}, nil
	}

	res := &emulate.OkResult{
		ExitCode:    reply.ExitCode,
		GasConsumed: gas,
		Logs:        encodeLogs(reply.Logs),
		C7:          &req.C7,
	}

	if res.Stack, err = stack.EncodeStack(reply.Stack); err != nil {
		return nil, err
	}

	if reply.ExitCode != 0 {
		return res, nil
	}

	data := reply.Data
	if data == nil {
		data = call.Data
	}
	res.DataCell = stack.ToBase64(data)

	list, err := actions.BuildList(reply.Actions...)
	if err != nil {
		return nil, err
	}
	res.ActionListCell = stack.ToBase64(list)

	if req.Debug {
		res.DebugLogs = []string{fmt.Sprintf("#DEBUG#: selector %d", req.FunctionSelector)}
	}

	return res, nil
}

func parseCall(req *emulate.Request) (*Call, error) {
	code, err := stack.FromBase64(req.Code)
	if err != nil {
		return nil, fmt.Errorf("invalid code cell: %w", err)
	}

	data, err := stack.FromBase64(req.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data cell: %w", err)
	}

	st, err := stack.DecodeStack(req.InitStack)
	if err != nil {
		return nil, fmt.Errorf("invalid init stack: %w", err)
	}

	c7, err := stack.Decode(req.C7)
	if err != nil {
		return nil, fmt.Errorf("invalid c7: %w", err)
	}

	c7Tuple, ok := c7.([]any)
	if !ok {
		return nil, fmt.Errorf("c7 is not a tuple")
	}

	return &Call{
		Selector: req.FunctionSelector,
		Debug:    req.Debug,
		Stack:    st,
		Code:     code,
		Data:     data,
		C7:       c7Tuple,
		GasLimit: req.GasLimit,
	}, nil
}

// ContractInfo returns smart contract info tuple from c7.
func (c *Call) ContractInfo() []any {
	if len(c.C7) == 0 {
		return nil
	}
	info, _ := c.C7[0].([]any)
	return info
}

func encodeLogs(logs string) string {
	return base64.StdEncoding.EncodeToString([]byte(logs))
}
