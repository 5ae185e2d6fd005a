package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-contract-executor/internal/contract"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/executor"
	"github.com/xssnick/tonutils-contract-executor/internal/pool"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"golang.org/x/sync/errgroup"
	"os"
	"sync/atomic"
	"time"
)

var (
	CodePath    = flag.String("code", "", "path to contract code boc")
	DataPath    = flag.String("data", "", "path to contract data boc")
	Method      = flag.String("method", "seqno", "get method to call")
	Requests    = flag.Int("requests", 10000, "total number of executions")
	Concurrency = flag.Int("concurrency", 64, "executions in flight")
	PoolSize    = flag.Int("pool", 0, "max execution units, 0 = half of cpus")
	VMExec      = flag.String("vm-exec", "", "path to vm-exec binary, native library is used when empty")
)

func main() {
	flag.Parse()
	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("benchmark failed")
	}
}

func run() error {
	code, err := readBOC(*CodePath)
	if err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}

	data := cell.BeginCell().EndCell()
	if *DataPath != "" {
		if data, err = readBOC(*DataPath); err != nil {
			return fmt.Errorf("failed to read data: %w", err)
		}
	}

	factory := emulate.NewNative
	if *VMExec != "" {
		factory = func() (emulate.Interpreter, error) {
			return emulate.NewProcess(*VMExec)
		}
	}

	size := *PoolSize
	if size <= 0 {
		size = executor.DefaultPoolSize()
	}
	p := pool.NewPool(size, factory)
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close pool")
		}
	}()
	backend := executor.NewPooled(p)

	var ok, failed int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*Concurrency)

	tm := time.Now()
	for i := 0; i < *Requests; i++ {
		g.Go(func() error {
			// every goroutine owns its contract, instances are not safe for concurrent use
			smc := contract.New(code, data, backend, contract.Config{})
			res, err := smc.InvokeGetMethod(ctx, *Method, nil, nil)
			if err != nil {
				return err
			}

			if res.Type == contract.ResultSuccess {
				atomic.AddInt64(&ok, 1)
			} else {
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return err
	}
	took := time.Since(tm)

	log.Info().Int64("success", ok).Int64("failed", failed).Int("units", p.Size()).
		Dur("took", took).Float64("rps", float64(*Requests)/took.Seconds()).Msg("benchmark finished")
	return nil
}

func readBOC(path string) (*cell.Cell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cell.FromBOC(data)
}
