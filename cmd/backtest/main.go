// Command backtest replays historical bars through a strategy with exchange
// rules, slippage, fees and the net P&L analyzer applied to every order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"btlab/services/broker"
	"btlab/services/clickhouse"
	"btlab/services/config"
	"btlab/services/engine"
	"btlab/services/exchange"
	"btlab/services/execution"
	"btlab/services/fees"
	"btlab/strategies"
)

// satWeights allocates a fraction of the account to each satellite strategy.
// Strategies not listed get the default satellite weight.
var satWeights = map[string]float64{
	"boll_breakout":  0.45,
	"pullback_ema20": 0.40,
}

const defaultSatWeight = 0.40

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols, e.g. BTCUSDT,ETHUSDT")
	strategyFlag := flag.String("strategy", "pullback_ema20", "strategy name")
	capitalFlag := flag.Float64("capital", 0, "per-symbol capital (mutually exclusive with -account)")
	accountFlag := flag.Float64("account", 0, "total account; satellite weight and split decide per-symbol capital")
	splitFlag := flag.String("split", "", "per-symbol weights, e.g. BTCUSDT:0.6,ETHUSDT:0.4")
	commissionFlag := flag.Float64("commission", 0, "flat commission rate override, e.g. 0.001")
	configFlag := flag.String("config", "", "path to TOML config")
	dataDirFlag := flag.String("data-dir", "", "directory holding <SYMBOL>_4h.csv files")
	depositFlag := flag.Float64("monthly-deposit", 0, "cash added at each month boundary")
	cashPolicyFlag := flag.String("cash-policy", "", "reject | scale_down")
	sourceFlag := flag.String("source", "csv", "bar source: csv | clickhouse")
	chAddrFlag := flag.String("ch-addr", "localhost:9000", "ClickHouse native address")
	intervalFlag := flag.String("interval", "4h", "bar interval for the ClickHouse source")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	cfg.CommissionOverride(*commissionFlag)
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	if *depositFlag > 0 {
		cfg.MonthlyDeposit = *depositFlag
	}
	if *cashPolicyFlag != "" {
		cfg.CashPolicy = *cashPolicyFlag
		if err := cfg.Validate(); err != nil {
			logger.Fatal("config", zap.Error(err))
		}
	}

	if *symbolsFlag == "" {
		logger.Fatal("no symbols given, use -symbols")
	}
	symbols := splitSymbols(*symbolsFlag)

	capitals, err := allocateCapital(symbols, *strategyFlag, *capitalFlag, *accountFlag, *splitFlag)
	if err != nil {
		logger.Fatal("capital allocation", zap.Error(err))
	}

	ctx := context.Background()

	resolver := exchange.NewResolver(cfg.CachePath, logger)
	rules, err := resolver.EnsureRules(ctx, symbols)
	if err != nil {
		var resErr *exchange.ResolutionError
		if !errors.As(err, &resErr) {
			logger.Fatal("exchange rules", zap.Error(err))
		}
		// unresolved symbols are skipped, the rest of the batch still runs
		logger.Warn("skipping symbols without exchange rules", zap.Strings("symbols", resErr.Symbols))
	}

	var chClient *clickhouse.Client
	if *sourceFlag == "clickhouse" {
		chClient, err = clickhouse.NewClient(ctx, clickhouse.Config{Addr: *chAddrFlag}, logger)
		if err != nil {
			logger.Fatal("clickhouse", zap.Error(err))
		}
		defer chClient.Close()
	}

	policy := execution.CashPolicyReject
	if cfg.CashPolicy == "scale_down" {
		policy = execution.CashPolicyScaleDown
	}

	for _, symbol := range symbols {
		if _, ok := rules[symbol]; !ok {
			continue
		}
		capital := capitals[symbol]
		logger.Info("run start",
			zap.String("symbol", symbol),
			zap.String("strategy", *strategyFlag),
			zap.Float64("capital", capital),
		)

		bars, err := loadBars(ctx, chClient, cfg.DataDir, symbol, *intervalFlag)
		if err != nil {
			logger.Error("load bars", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		cadence := engine.DetectCadenceMs(bars, intervalMs(*intervalFlag))
		if gaps := engine.DetectGaps(bars, cadence); len(gaps) > 0 {
			logger.Warn("series has gaps",
				zap.String("symbol", symbol),
				zap.Int64("cadence_ms", cadence),
				zap.Int("gaps", len(gaps)),
				zap.Int64("first_gap_after", gaps[0]),
			)
		}

		if err := runSymbol(symbol, *strategyFlag, capital, bars, rules, cfg, policy, logger); err != nil {
			logger.Error("run failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// allocateCapital mirrors the satellite model: -account distributes through
// the strategy's satellite weight and an optional per-symbol split; -capital
// assigns the same amount to every symbol.
func allocateCapital(symbols []string, strategy string, capital, account float64, split string) (map[string]float64, error) {
	capitals := make(map[string]float64, len(symbols))

	switch {
	case account > 0:
		satPct, ok := satWeights[strategy]
		if !ok {
			satPct = defaultSatWeight
		}
		satTotal := account * satPct

		weights := make(map[string]float64, len(symbols))
		if split != "" {
			for _, part := range strings.Split(split, ",") {
				kv := strings.SplitN(part, ":", 2)
				if len(kv) != 2 {
					return nil, fmt.Errorf("bad split entry %q", part)
				}
				w, err := strconv.ParseFloat(kv[1], 64)
				if err != nil {
					return nil, fmt.Errorf("bad split weight %q: %w", kv[1], err)
				}
				weights[strings.ToUpper(strings.TrimSpace(kv[0]))] = w
			}
		} else {
			w := 1.0 / float64(len(symbols))
			for _, s := range symbols {
				weights[s] = w
			}
		}
		for _, s := range symbols {
			capitals[s] = satTotal * weights[s]
		}
	case capital > 0:
		for _, s := range symbols {
			capitals[s] = capital
		}
	default:
		return nil, fmt.Errorf("pass -account or -capital")
	}
	return capitals, nil
}

// intervalMs maps an interval label to its bar length, used as the cadence
// fallback for series too short to vote.
func intervalMs(interval string) int64 {
	switch interval {
	case "5m":
		return 5 * 60 * 1000
	case "15m":
		return 15 * 60 * 1000
	case "1h":
		return 60 * 60 * 1000
	case "1d":
		return 24 * 60 * 60 * 1000
	default:
		return 4 * 60 * 60 * 1000
	}
}

func loadBars(ctx context.Context, ch *clickhouse.Client, dataDir, symbol, interval string) ([]engine.Bar, error) {
	if ch != nil {
		return ch.LoadBars(ctx, symbol, interval, 0, 0)
	}
	path := filepath.Join(dataDir, fmt.Sprintf("%s_%s.csv", symbol, interval))
	return engine.LoadCSV(path)
}

func runSymbol(
	symbol, strategyName string,
	capital float64,
	bars []engine.Bar,
	rules map[string]exchange.ExchangeRules,
	cfg *config.Config,
	policy execution.CashPolicy,
	logger *zap.Logger,
) error {
	strat, err := strategies.New(strategyName)
	if err != nil {
		return err
	}

	simBroker := broker.New(capital)
	analyzer := execution.NewNetPnLAnalyzer(cfg.Fees, logger)
	market := engine.NewReplayMarket(symbol, bars)
	exec := execution.NewMiddleware(simBroker, market, analyzer, execution.Options{
		Rules:       rules,
		Fees:        cfg.Fees,
		Slippage:    cfg.Slippage,
		Latency:     cfg.Latency,
		MaxAllocPct: cfg.MaxAllocPct,
		Policy:      policy,
		Logger:      logger,
	})

	runner := &engine.Runner{
		Symbol: symbol,
		Bars:   bars,
		Warmup: strat.Warmup(),
		Market: market,
		OnBar: func(_ int, bar engine.Bar) {
			simBroker.Mark(symbol, bar.Close)
		},
		MonthlyDeposit: cfg.MonthlyDeposit,
		Depositor:      simBroker,
		Logger:         logger,
	}

	fmt.Printf("Starting portfolio value: %.2f\n", simBroker.Value())
	if err := runner.Run(strat, exec); err != nil {
		return err
	}
	fmt.Printf("Final portfolio value: %.2f\n", simBroker.Value())
	if d := runner.TotalDeposited(); d > 0 {
		fmt.Printf("Deposited along the way: %.2f (%d deposits)\n", d, runner.Deposits())
	}

	trades := analyzer.Trades()
	if len(trades) > 0 {
		out := filepath.Join(cfg.ResultsDir, fmt.Sprintf("%s_%s_net.csv", symbol, strategyName))
		if err := execution.WriteTradesCSV(out, trades); err != nil {
			return fmt.Errorf("write trades: %w", err)
		}
		fmt.Printf("Net trade log: %s (%d trades, fees in=%.2f out=%.2f)\n",
			out, len(trades), analyzer.TotalFeeIn(), analyzer.TotalFeeOut())
	} else {
		fmt.Println("No closed trades.")
	}

	printBuyAndHold(symbol, capital, bars, cfg.Fees)
	return nil
}

// printBuyAndHold reports the gross and net benchmark for the same capital
// held from the first to the last close of the series.
func printBuyAndHold(symbol string, capital float64, bars []engine.Bar, feeCfg fees.Config) {
	if len(bars) < 2 || capital <= 0 {
		return
	}
	first := bars[0].Close
	last := bars[len(bars)-1].Close
	if first <= 0 {
		return
	}

	gross := capital * last / first
	grossPct := (gross/capital - 1) * 100
	fmt.Printf("Buy & hold gross (%s): %.2f -> %.2f (%+.2f%%) [%.4f -> %.4f]\n",
		symbol, capital, gross, grossPct, first, last)

	_, _, feeTotal := fees.BuyAndHold(capital, first, last, feeCfg)
	net := gross - feeTotal
	netPct := (net/capital - 1) * 100
	fmt.Printf("Buy & hold net: %.2f -> %.2f (%+.2f%%) [fees=%.2f]\n", capital, net, netPct, feeTotal)
}
