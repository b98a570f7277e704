// Command signalbot watches Binance 4H candles and posts Bollinger-breakout
// entry/exit signals to a Discord webhook. It keeps per-symbol LONG/FLAT
// state in a JSON file so restarts do not re-signal, and stamps a heartbeat
// file the watchdog checks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"btlab/services/config"
	"btlab/services/engine"
	"btlab/services/notify"
)

const (
	binanceREST   = "https://api.binance.com"
	binanceStream = "wss://stream.binance.com:9443/ws"
	statePath     = "state_bol_breakout.json"
	klineLimit    = 300
)

type symbolState struct {
	Position   string  `json:"position"` // FLAT | LONG
	StopPrice  float64 `json:"stop_price"`
	LastOpenMs int64   `json:"last_open_ms"`
}

type botState map[string]*symbolState

func loadState(path string) (botState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return botState{}, nil
	}
	if err != nil {
		return nil, err
	}
	st := botState{}
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return st, nil
}

func saveState(path string, st botState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// fetchKlines downloads recent candles. Binance returns arrays with numeric
// timestamps and string-encoded prices.
func fetchKlines(ctx context.Context, client *http.Client, symbol, interval string, limit int) ([]engine.Bar, error) {
	q := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, binanceREST+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("klines %s: status %d: %s", symbol, resp.StatusCode, string(body))
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("klines %s: decode: %w", symbol, err)
	}

	bars := make([]engine.Bar, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			continue
		}
		vals := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		bars = append(bars, engine.Bar{
			Timestamp: openTime,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}

// evaluate applies the breakout rules to the last closed candle and mutates
// the symbol state. Returns the Discord message, or "" when nothing fired.
func evaluate(bars []engine.Bar, st *symbolState) string {
	// the final bar is still forming, signal off the last closed one
	if len(bars) < 60 {
		return ""
	}
	i := len(bars) - 2
	last := bars[i]
	if last.Timestamp == st.LastOpenMs {
		return ""
	}

	closes := engine.Closes(bars)
	ema20 := engine.EMA(closes, 20)
	ema50 := engine.EMA(closes, 50)
	atr14 := engine.SMA(engine.TrueRange(bars), 14)
	_, bbTop, bbBot := engine.Bollinger(closes, 20, 2.0)

	volumes := make([]float64, len(bars))
	for j, b := range bars {
		volumes[j] = b.Volume
	}
	volMA := engine.SMA(volumes, 20)

	if math.IsNaN(bbTop[i]) || math.IsNaN(atr14[i]) || math.IsNaN(volMA[i]) {
		st.LastOpenMs = last.Timestamp
		return ""
	}

	close := last.Close
	bbWidth := (bbTop[i] - bbBot[i]) / (close + 1e-8)

	if st.Position == "FLAT" || st.Position == "" {
		body := math.Abs(last.Close - last.Open)
		rng := math.Max(last.High-last.Low, 1e-8)
		breakoutCandle := body/rng >= 0.5 && last.Close > last.Open

		squeeze := bbWidth <= 0.12
		breakout := close > bbTop[i] && breakoutCandle
		volOK := last.Volume > volMA[i]
		trendOK := ema20[i] > ema50[i]

		if squeeze && breakout && volOK && trendOK {
			stop := close - 2.0*atr14[i]
			st.Position = "LONG"
			st.StopPrice = stop
			st.LastOpenMs = last.Timestamp
			return fmt.Sprintf("**BOL BREAKOUT - ENTRY LONG**\nPrice: `%.4f`\nInitial stop: `%.4f`\nBB width: `%.4f`",
				close, stop, bbWidth)
		}
	} else {
		if st.StopPrice > 0 && close <= st.StopPrice {
			msg := fmt.Sprintf("**BOL BREAKOUT - STOP HIT**\nClose: `%.4f` <= stop `%.4f`", close, st.StopPrice)
			st.Position = "FLAT"
			st.StopPrice = 0
			st.LastOpenMs = last.Timestamp
			return msg
		}
		if close < ema20[i] {
			msg := fmt.Sprintf("**BOL BREAKOUT - WEAK EXIT**\nClose: `%.4f` < EMA20 `%.4f`", close, ema20[i])
			st.Position = "FLAT"
			st.StopPrice = 0
			st.LastOpenMs = last.Timestamp
			return msg
		}
	}

	st.LastOpenMs = last.Timestamp
	return ""
}

// streamClosedCandles subscribes to the kline websocket and pushes a symbol
// onto wake every time one of its candles closes. Reconnects forever.
func streamClosedCandles(ctx context.Context, symbols []string, interval string, wake chan<- string, logger *zap.Logger) {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@kline_" + interval
	}
	endpoint := binanceStream + "/" + strings.Join(streams, "/")

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			logger.Warn("websocket dial failed, falling back to poll cadence", zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		logger.Info("kline stream connected", zap.Strings("symbols", symbols))

		for {
			var event struct {
				Symbol string `json:"s"`
				Kline  struct {
					Closed bool `json:"x"`
				} `json:"k"`
			}
			if err := conn.ReadJSON(&event); err != nil {
				logger.Warn("kline stream read failed, reconnecting", zap.Error(err))
				conn.Close()
				break
			}
			if event.Kline.Closed && event.Symbol != "" {
				select {
				case wake <- event.Symbol:
				default:
				}
			}
		}
	}
}

func main() {
	symbolsFlag := flag.String("symbols", "BTCUSDT,ADAUSDT,XRPUSDT", "comma-separated symbols")
	intervalFlag := flag.String("interval", "4h", "candle interval")
	sleepFlag := flag.Duration("sleep", 60*time.Second, "poll cadence")
	useStream := flag.Bool("stream", false, "also subscribe to the kline websocket for immediate candle-close wakeups")
	configPath := flag.String("config", "", "path to TOML config")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	webhook := cfg.SignalWebhook
	if env := os.Getenv("DISCORD_WEBHOOK_URL"); env != "" {
		webhook = env
	}
	sender := notify.NewDiscordSender(webhook)
	if !sender.Configured() {
		logger.Warn("no webhook configured, signals go to the log only")
	}

	symbols := make([]string, 0)
	for _, s := range strings.Split(*symbolsFlag, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}

	state, err := loadState(statePath)
	if err != nil {
		logger.Fatal("load state", zap.Error(err))
	}
	for _, sym := range symbols {
		if _, ok := state[sym]; !ok {
			state[sym] = &symbolState{Position: "FLAT"}
		}
	}

	ctx := context.Background()
	client := &http.Client{Timeout: 10 * time.Second}

	wake := make(chan string, len(symbols))
	if *useStream {
		go streamClosedCandles(ctx, symbols, *intervalFlag, wake, logger)
	}

	logger.Info("signal bot started",
		zap.Strings("symbols", symbols),
		zap.Duration("sleep", *sleepFlag),
		zap.Bool("stream", *useStream),
	)

	check := func(sym string) {
		bars, err := fetchKlines(ctx, client, sym, *intervalFlag, klineLimit)
		if err != nil {
			logger.Error("fetch klines", zap.String("symbol", sym), zap.Error(err))
			return
		}
		msg := evaluate(bars, state[sym])
		if msg == "" {
			return
		}
		full := "**" + sym + "**\n" + msg
		logger.Info("signal", zap.String("symbol", sym), zap.String("message", msg))
		if sender.Configured() {
			if err := sender.Send(ctx, full); err != nil {
				logger.Error("discord send", zap.Error(err))
			}
		}
	}

	heartbeatPath := cfg.HeartbeatPath
	ticker := time.NewTicker(*sleepFlag)
	defer ticker.Stop()
	for {
		for _, sym := range symbols {
			check(sym)
		}
		if err := saveState(statePath, state); err != nil {
			logger.Error("save state", zap.Error(err))
		}
		if err := notify.WriteHeartbeat(heartbeatPath); err != nil {
			logger.Error("heartbeat", zap.Error(err))
		}

		select {
		case sym := <-wake:
			check(sym)
		case <-ticker.C:
		}
	}
}
