package contract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-contract-executor/internal/actions"
	"github.com/xssnick/tonutils-contract-executor/internal/c7"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/executor"
	"github.com/xssnick/tonutils-contract-executor/internal/stack"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"math/big"
	"time"
)

var ErrNoBody = errors.New("no body was provided for message")

// VMError is returned when vm refused to execute request, it means that request is malformed.
type VMError struct {
	Reason string
}

func (e *VMError) Error() string {
	return "cannot execute vm: " + e.Reason
}

type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultFailed  ResultType = "failed"
)

type ExecutionResult struct {
	Type        ResultType
	ExitCode    int32
	GasConsumed int64
	// Result is the output stack, values are nil, *big.Int, *cell.Cell, *cell.Slice or []any
	Result         []any
	ActionListCell *cell.Cell
	Actions        []actions.OutAction
	Logs           string
	DebugLogs      []string
	// C7 is the context register vm was running with, when vm reports it
	C7 []any
}

type GasLimits struct {
	Limit  int64
	Max    int64
	Credit int64
}

var Unlimited = GasLimits{
	Limit:  emulate.GasUnlimited,
	Max:    emulate.GasUnlimited,
	Credit: emulate.GasUnlimited,
}

type Config struct {
	// GetMethodsMutate makes get methods update data and code of contract, disabled by default.
	GetMethodsMutate bool
	Debug            bool
}

// SmartContract keeps code and data of a contract between executions.
// It is not safe to send messages to the same instance concurrently.
type SmartContract struct {
	code *cell.Cell
	data *cell.Cell

	codeBoc string
	dataBoc string

	backend  executor.Backend
	config   Config
	c7Config c7.Config
	c7       *emulate.StackEntry
}

type mutation struct {
	data bool
	code bool
}

// New creates contract executed by backend, nil backend means shared native pool.
func New(code, data *cell.Cell, backend executor.Backend, cfg Config) *SmartContract {
	if backend == nil {
		backend = executor.Shared()
	}

	s := &SmartContract{
		backend: backend,
		config:  cfg,
	}
	s.SetCodeCell(code)
	s.SetDataCell(data)
	return s
}

func (s *SmartContract) InvokeGetMethod(ctx context.Context, method string, args []any, gas *GasLimits) (*ExecutionResult, error) {
	st, err := stack.EncodeStack(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	c7Entry, err := s.resolveC7(nil)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, emulate.MethodID(method), st, c7Entry, gas, mutation{
		data: s.config.GetMethodsMutate,
		code: s.config.GetMethodsMutate,
	})
}

// SendInternalMessage delivers message to recv_internal, contract sees configured balance increased by message value.
func (s *SmartContract) SendInternalMessage(ctx context.Context, msg *tlb.InternalMessage, gas *GasLimits) (*ExecutionResult, error) {
	if msg.Body == nil {
		return nil, ErrNoBody
	}

	msgCell, err := tlb.ToCell(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	value := msg.Amount.Nano()
	balance := new(big.Int).Add(s.c7Config.ResolvedBalance(), value)

	c7Entry, err := s.resolveC7(balance)
	if err != nil {
		return nil, err
	}

	st, err := stack.EncodeStack([]any{balance, value, msgCell, msg.Body.BeginParse()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message stack: %w", err)
	}

	return s.run(ctx, emulate.SelectorRecvInternal, st, c7Entry, gas, mutation{data: true, code: true})
}

// SendExternalMessage delivers message to recv_external, incoming value is always zero.
func (s *SmartContract) SendExternalMessage(ctx context.Context, msg *tlb.ExternalMessage, gas *GasLimits) (*ExecutionResult, error) {
	if msg.Body == nil {
		return nil, ErrNoBody
	}

	msgCell, err := tlb.ToCell(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	c7Entry, err := s.resolveC7(nil)
	if err != nil {
		return nil, err
	}

	st, err := stack.EncodeStack([]any{s.c7Config.ResolvedBalance(), big.NewInt(0), msgCell, msg.Body.BeginParse()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message stack: %w", err)
	}

	return s.run(ctx, emulate.SelectorRecvExternal, st, c7Entry, gas, mutation{data: true, code: true})
}

func (s *SmartContract) run(ctx context.Context, selector int32, st []emulate.StackEntry, c7Entry emulate.StackEntry, gas *GasLimits, mut mutation) (*ExecutionResult, error) {
	if gas == nil {
		gas = &Unlimited
	}

	req := &emulate.Request{
		Debug:            s.config.Debug,
		FunctionSelector: selector,
		InitStack:        st,
		Code:             s.codeBoc,
		Data:             s.dataBoc,
		C7:               c7Entry,
		GasLimit:         gas.Limit,
		GasMax:           gas.Max,
		GasCredit:        gas.Credit,
	}

	tm := time.Now()
	res, err := s.backend.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute: %w", err)
	}

	switch r := res.(type) {
	case *emulate.FailResult:
		if r.Error != "" {
			return nil, &VMError{Reason: r.Error}
		}

		if r.ExitCode == nil {
			return nil, &VMError{Reason: "vm failed without exit code"}
		}
		log.Debug().Int32("selector", selector).Int32("exit_code", *r.ExitCode).Msg("vm failed without reason")
		return failed(*r.ExitCode, r.Logs), nil
	case *emulate.OkResult:
		if r.ExitCode != 0 {
			log.Debug().Int32("selector", selector).Int32("exit_code", r.ExitCode).
				Dur("took", time.Since(tm)).Msg("contract execution failed")
			return failed(r.ExitCode, r.Logs), nil
		}
		return s.applyResult(r, mut)
	}
	return nil, fmt.Errorf("unexpected vm result type %T", res)
}

func (s *SmartContract) applyResult(r *emulate.OkResult, mut mutation) (*ExecutionResult, error) {
	result, err := stack.DecodeStack(r.Stack)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result stack: %w", err)
	}

	listCell := cell.BeginCell().EndCell()
	if r.ActionListCell != "" {
		if listCell, err = stack.FromBase64(r.ActionListCell); err != nil {
			return nil, fmt.Errorf("failed to parse action list cell: %w", err)
		}
	}

	list, err := actions.Parse(listCell)
	if err != nil {
		return nil, fmt.Errorf("failed to parse actions: %w", err)
	}

	var c7Tuple []any
	if r.C7 != nil {
		v, err := stack.Decode(*r.C7)
		if err != nil {
			return nil, fmt.Errorf("failed to decode c7: %w", err)
		}
		c7Tuple, _ = v.([]any)
	}

	// state is updated only when everything is decoded
	if mut.data && r.DataCell != "" {
		data, err := stack.FromBase64(r.DataCell)
		if err != nil {
			return nil, fmt.Errorf("failed to parse data cell: %w", err)
		}
		s.SetDataCell(data)
	}

	if mut.code {
		if code := actions.FindSetCode(list); code != nil {
			log.Debug().Msg("contract code replaced by set_code action")
			s.SetCodeCell(code)
		}
	}

	return &ExecutionResult{
		Type:           ResultSuccess,
		ExitCode:       r.ExitCode,
		GasConsumed:    r.GasConsumed,
		Result:         result,
		ActionListCell: listCell,
		Actions:        list,
		Logs:           decodeLogs(r.Logs),
		DebugLogs:      r.DebugLogs,
		C7:             c7Tuple,
	}, nil
}

func failed(code int32, logs string) *ExecutionResult {
	return &ExecutionResult{
		Type:     ResultFailed,
		ExitCode: code,
		Result:   []any{},
		Actions:  []actions.OutAction{},
		Logs:     decodeLogs(logs),
	}
}

func decodeLogs(logs string) string {
	data, err := base64.StdEncoding.DecodeString(logs)
	if err != nil {
		return logs
	}
	return string(data)
}

// resolveC7 returns pinned c7 or builds a fresh one, balance overrides configured one when not nil.
func (s *SmartContract) resolveC7(balance *big.Int) (emulate.StackEntry, error) {
	if s.c7 != nil {
		return *s.c7, nil
	}

	cfg := s.c7Config
	if balance != nil {
		cfg = cfg.WithBalance(balance)
	}

	entry, err := c7.Prepare(cfg)
	if err != nil {
		return emulate.StackEntry{}, fmt.Errorf("failed to prepare c7: %w", err)
	}
	return entry, nil
}

// C7 returns context register which will be used for the next get method call.
func (s *SmartContract) C7() ([]any, error) {
	entry, err := s.resolveC7(nil)
	if err != nil {
		return nil, err
	}

	v, err := stack.Decode(entry)
	if err != nil {
		return nil, err
	}
	return v.([]any), nil
}

// SetC7 pins context register, c7 config is ignored while it is set. Nil unpins it.
func (s *SmartContract) SetC7(tuple []any) error {
	if tuple == nil {
		s.c7 = nil
		return nil
	}

	entry, err := stack.Encode(tuple)
	if err != nil {
		return fmt.Errorf("failed to encode c7: %w", err)
	}
	s.c7 = &entry
	return nil
}

func (s *SmartContract) SetC7Config(cfg c7.Config) {
	s.c7Config = cfg
}

func (s *SmartContract) C7Config() c7.Config {
	return s.c7Config
}

func (s *SmartContract) SetUnixTime(tm uint32) {
	s.c7Config = s.c7Config.WithUnixTime(tm)
}

func (s *SmartContract) SetBalance(balance *big.Int) {
	s.c7Config = s.c7Config.WithBalance(balance)
}

func (s *SmartContract) SetDataCell(data *cell.Cell) {
	s.data = data
	s.dataBoc = stack.ToBase64(data)
}

func (s *SmartContract) SetCodeCell(code *cell.Cell) {
	s.code = code
	s.codeBoc = stack.ToBase64(code)
}

func (s *SmartContract) Code() *cell.Cell {
	return s.code
}

func (s *SmartContract) Data() *cell.Cell {
	return s.data
}
