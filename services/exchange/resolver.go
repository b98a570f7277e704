package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultCachePath is where resolved exchange filters persist between runs.
const DefaultCachePath = "config/exchange_info.json"

// DefaultBases are the candidate exchangeInfo endpoints, tried in order.
var DefaultBases = []string{
	"https://api.binance.com",
	"https://api-gcp.binance.com",
	"https://api1.binance.com",
	"https://api2.binance.com",
	"https://api3.binance.com",
	"https://api4.binance.com",
	"https://data-api.binance.vision",
}

// externalSymbols are reference instruments that never trade on the exchange;
// they always get synthetic permissive rules and bypass fetch and cache.
var externalSymbols = map[string]struct{}{
	"XAUUSD": {},
	"XAGUSD": {},
	"GOLD":   {},
	"OIL":    {},
	"SP500":  {},
}

// IsExternal reports whether symbol is a non-exchange reference instrument.
func IsExternal(symbol string) bool {
	_, ok := externalSymbols[symbol]
	return ok
}

// ResolutionError reports symbols whose rules could not be obtained from any
// endpoint and had no cache entry. Runs for those symbols cannot proceed;
// other symbols in the batch are unaffected.
type ResolutionError struct {
	Symbols []string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("exchange rules unavailable for %s: %v", strings.Join(e.Symbols, ","), e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver fetches and caches exchange rules. The on-disk cache is a JSON
// object keyed by symbol holding the raw catalog entries; it is read at
// startup, merged with fetched entries, written back once, and never expired.
type Resolver struct {
	CachePath string
	Bases     []string
	Client    *http.Client
	Logger    *zap.Logger
}

func NewResolver(cachePath string, logger *zap.Logger) *Resolver {
	if cachePath == "" {
		cachePath = DefaultCachePath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		CachePath: cachePath,
		Bases:     DefaultBases,
		Client:    &http.Client{Timeout: 12 * time.Second},
		Logger:    logger,
	}
}

// EnsureRules returns rules for every requested symbol. Cached and external
// symbols are served locally; the rest are fetched once and merged into the
// cache. When some symbols cannot be resolved the returned map still holds
// every symbol that could, alongside a *ResolutionError naming the failures.
func (r *Resolver) EnsureRules(ctx context.Context, symbols []string) (map[string]ExchangeRules, error) {
	cache, err := r.loadCache()
	if err != nil {
		return nil, fmt.Errorf("load exchange cache: %w", err)
	}

	var need []string
	for _, s := range symbols {
		if _, cached := cache[s]; !cached && !IsExternal(s) {
			need = append(need, s)
		}
	}

	var fetchErr error
	if len(need) > 0 {
		fetched, err := r.fetchExchangeInfo(ctx, need)
		if err != nil {
			fetchErr = err
			r.Logger.Warn("exchangeInfo fetch failed on all endpoints",
				zap.Strings("symbols", need), zap.Error(err))
		} else {
			for sym, raw := range fetched {
				cache[sym] = raw
			}
			if err := r.saveCache(cache); err != nil {
				return nil, fmt.Errorf("save exchange cache: %w", err)
			}
		}
	}

	rules := make(map[string]ExchangeRules, len(symbols))
	var missing []string
	for _, s := range symbols {
		if IsExternal(s) {
			rules[s] = SyntheticRules(s)
			continue
		}
		raw, ok := cache[s]
		if !ok {
			missing = append(missing, s)
			continue
		}
		parsed, err := ParseSymbolRules(raw)
		if err != nil {
			missing = append(missing, s)
			r.Logger.Warn("cached exchange entry unparseable", zap.String("symbol", s), zap.Error(err))
			continue
		}
		rules[s] = parsed
	}

	if len(missing) > 0 {
		return rules, &ResolutionError{Symbols: missing, Err: fetchErr}
	}
	return rules, nil
}

func (r *Resolver) fetchExchangeInfo(ctx context.Context, symbols []string) (map[string]json.RawMessage, error) {
	var qs string
	if len(symbols) == 1 {
		qs = "symbol=" + url.QueryEscape(symbols[0])
	} else {
		quoted := make([]string, len(symbols))
		for i, s := range symbols {
			quoted[i] = `"` + s + `"`
		}
		qs = "symbols=" + url.QueryEscape("["+strings.Join(quoted, ",")+"]")
	}

	var lastErr error
	for _, base := range r.Bases {
		body, err := r.httpGet(ctx, base+"/api/v3/exchangeInfo?"+qs)
		if err != nil {
			lastErr = err
			continue
		}
		var payload struct {
			Symbols []json.RawMessage `json:"symbols"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			lastErr = err
			continue
		}
		out := make(map[string]json.RawMessage)
		for _, raw := range payload.Symbols {
			var probe struct {
				Symbol string `json:"symbol"`
			}
			if err := json.Unmarshal(raw, &probe); err != nil || probe.Symbol == "" {
				continue
			}
			out[probe.Symbol] = raw
		}
		if len(out) > 0 {
			return out, nil
		}
		lastErr = fmt.Errorf("empty symbols payload from %s", base)
	}
	return nil, lastErr
}

func (r *Resolver) httpGet(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func (r *Resolver) loadCache() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(r.CachePath)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	cache := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return cache, nil
}

func (r *Resolver) saveCache(cache map[string]json.RawMessage) error {
	if dir := filepath.Dir(r.CachePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.CachePath, data, 0o644)
}
