package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xssnick/tonutils-contract-executor/config"
	"github.com/xssnick/tonutils-contract-executor/internal/chain"
	"github.com/xssnick/tonutils-contract-executor/internal/contract"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-contract-executor/internal/executor"
	"github.com/xssnick/tonutils-contract-executor/internal/pool"
	"github.com/xssnick/tonutils-contract-executor/metrics"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	Verbosity  = flag.Int("verbosity", 2, "3 = debug, 2 = info, 1 = warn, 0 = error")
	ConfigPath = flag.String("config", "executor-config.json", "path to config file, created with defaults when missing")
	CodePath   = flag.String("code", "", "path to contract code boc")
	DataPath   = flag.String("data", "", "path to contract data boc, empty cell when not set")
	Account    = flag.String("account", "", "load code, data and balance of deployed contract instead of files")
	Method     = flag.String("method", "", "get method name")
	Args       = flag.String("args", "", "comma separated integer arguments")
	VMExec     = flag.String("vm-exec", "", "path to vm-exec binary, native library is used when empty")
	Repeat     = flag.Int("repeat", 1, "how many times to invoke method")
)

func main() {
	flag.Parse()
	liteclient.Logger = func(v ...any) {}

	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	switch *Verbosity {
	case 3:
		log.Logger = log.Logger.Level(zerolog.DebugLevel).With().Logger()
	case 2:
		log.Logger = log.Logger.Level(zerolog.InfoLevel).With().Logger()
	case 1:
		log.Logger = log.Logger.Level(zerolog.WarnLevel).With().Logger()
	case 0:
		log.Logger = log.Logger.Level(zerolog.ErrorLevel).With().Logger()
	}

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("execution failed")
	}
}

func run() error {
	if *Method == "" {
		return fmt.Errorf("method is not specified")
	}

	cfg, err := config.LoadConfig(*ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	metrics.InitMetrics(cfg.MetricsNamespace, "tonutils_contract_executor")

	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				log.Error().Err(err).Msg("listen metrics failed")
			}
		}()
	}

	args, err := parseArgs(*Args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	factory := emulate.NewNative
	if *VMExec != "" {
		factory = func() (emulate.Interpreter, error) {
			return emulate.NewProcess(*VMExec)
		}
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = executor.DefaultPoolSize()
	}
	p := pool.NewPool(size, factory)
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close pool")
		}
	}()

	smc, err := loadContract(cfg, executor.NewPooled(p))
	if err != nil {
		return fmt.Errorf("failed to prepare contract: %w", err)
	}

	gas := &contract.GasLimits{
		Limit:  cfg.Gas.Limit,
		Max:    cfg.Gas.Max,
		Credit: cfg.Gas.Credit,
	}

	for i := 0; i < *Repeat; i++ {
		tm := time.Now()
		res, err := smc.InvokeGetMethod(context.Background(), *Method, args, gas)
		if err != nil {
			return fmt.Errorf("failed to invoke get method: %w", err)
		}

		log.Info().Str("type", string(res.Type)).Int32("exit_code", res.ExitCode).
			Int64("gas", res.GasConsumed).Int("actions", len(res.Actions)).
			Dur("took", time.Since(tm)).Msg("get method executed")

		if res.Logs != "" {
			log.Debug().Msg(res.Logs)
		}
		for _, l := range res.DebugLogs {
			log.Info().Msg(l)
		}
		for j, v := range res.Result {
			fmt.Printf("%d: %s\n", j, formatValue(v))
		}
	}
	return nil
}

func loadContract(cfg *config.Config, backend executor.Backend) (*contract.SmartContract, error) {
	smcCfg := contract.Config{
		GetMethodsMutate: cfg.GetMethodsMutate,
		Debug:            cfg.Debug,
	}

	if *Account != "" {
		addr, err := address.ParseAddr(*Account)
		if err != nil {
			return nil, fmt.Errorf("incorrect account address: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		blc, err := chain.NewBackendBalancer(ctx, cfg.Backends, chain.BalancerTypeFailOver)
		if err != nil {
			return nil, fmt.Errorf("failed to init backend balancer: %w", err)
		}

		loader, err := chain.NewLoader(blc, chain.LoaderConfig{
			MaxQueriesPerSec:  cfg.Chain.MaxQueriesPerSec,
			QueriesBurst:      cfg.Chain.QueriesBurst,
			MaxCachedAccounts: cfg.Chain.MaxCachedAccounts,
			LoadGlobalConfig:  cfg.Chain.LoadGlobalConfig,
		})
		if err != nil {
			return nil, err
		}

		snap, err := loader.Load(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to load account: %w", err)
		}
		log.Info().Str("addr", addr.String()).Uint32("seqno", snap.Block.SeqNo).
			Str("balance", snap.Balance.String()).Msg("account loaded")

		return snap.Contract(backend, smcCfg), nil
	}

	if *CodePath == "" {
		return nil, fmt.Errorf("code or account should be specified")
	}

	code, err := readBOC(*CodePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read code: %w", err)
	}

	data := cell.BeginCell().EndCell()
	if *DataPath != "" {
		if data, err = readBOC(*DataPath); err != nil {
			return nil, fmt.Errorf("failed to read data: %w", err)
		}
	}

	ctxCfg, err := cfg.ContextConfig()
	if err != nil {
		return nil, err
	}

	smc := contract.New(code, data, backend, smcCfg)
	smc.SetC7Config(ctxCfg)
	return smc, nil
}

func readBOC(path string) (*cell.Cell, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cell.FromBOC(data)
}

func parseArgs(s string) ([]any, error) {
	var args []any
	if s == "" {
		return args, nil
	}

	for _, part := range strings.Split(s, ",") {
		v, ok := new(big.Int).SetString(strings.TrimSpace(part), 0)
		if !ok {
			return nil, fmt.Errorf("incorrect integer %q", part)
		}
		args = append(args, v)
	}
	return args, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case *big.Int:
		return x.String()
	case *cell.Cell:
		return "cell " + x.Dump()
	case *cell.Slice:
		c, err := x.ToCell()
		if err != nil {
			return "slice <broken>"
		}
		return "slice " + c.Dump()
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, formatValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}
