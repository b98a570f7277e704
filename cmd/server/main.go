// Command server exposes the backtest runner over HTTP: submit a job, poll
// its status, fetch closed trades as JSON or Arrow IPC, scrape metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"btlab/services/arrowstream"
	"btlab/services/broker"
	"btlab/services/config"
	"btlab/services/engine"
	"btlab/services/exchange"
	"btlab/services/execution"
	"btlab/services/monitoring"
	"btlab/strategies"
)

type backtestRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Strategy string  `json:"strategy" binding:"required"`
	Capital  float64 `json:"capital" binding:"required"`
	DataPath string  `json:"data_path"` // CSV override; defaults to <data_dir>/<symbol>_4h.csv
}

type jobResult struct {
	JobID      string                  `json:"job_id"`
	Status     string                  `json:"status"` // running | completed | failed
	Error      string                  `json:"error,omitempty"`
	FinalValue float64                 `json:"final_value,omitempty"`
	Trades     []execution.ClosedTrade `json:"-"`
	StartedAt  time.Time               `json:"started_at"`
}

type server struct {
	cfg     *config.Config
	rules   map[string]exchange.ExchangeRules
	metrics *monitoring.Metrics
	arrow   *arrowstream.Pipeline
	logger  *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*jobResult
}

func (s *server) routes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/backtest", s.handleBacktest)
		api.GET("/backtest/:job_id", s.handleJobStatus)
		api.GET("/backtest/:job_id/trades", s.handleJobTrades)
		api.GET("/strategies", s.handleStrategies)
	}
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": strategies.Names()})
}

func (s *server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := strategies.New(req.Strategy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := uuid.New().String()
	job := &jobResult{JobID: jobID, Status: "running", StartedAt: time.Now()}
	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	go s.runJob(job, req)

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": job.Status})
}

func (s *server) runJob(job *jobResult, req backtestRequest) {
	s.logger.Info("backtest job started",
		zap.String("job_id", job.JobID),
		zap.String("symbol", req.Symbol),
		zap.String("strategy", req.Strategy),
	)

	fail := func(err error) {
		s.logger.Error("backtest job failed", zap.String("job_id", job.JobID), zap.Error(err))
		s.mu.Lock()
		job.Status = "failed"
		job.Error = err.Error()
		s.mu.Unlock()
	}

	dataPath := req.DataPath
	if dataPath == "" {
		dataPath = fmt.Sprintf("%s/%s_4h.csv", s.cfg.DataDir, req.Symbol)
	}
	bars, err := engine.LoadCSV(dataPath)
	if err != nil {
		fail(err)
		return
	}

	strat, err := strategies.New(req.Strategy)
	if err != nil {
		fail(err)
		return
	}

	policy := execution.CashPolicyReject
	if s.cfg.CashPolicy == "scale_down" {
		policy = execution.CashPolicyScaleDown
	}

	simBroker := broker.New(req.Capital)
	analyzer := execution.NewNetPnLAnalyzer(s.cfg.Fees, s.logger)
	market := engine.NewReplayMarket(req.Symbol, bars)
	exec := execution.NewMiddleware(simBroker, market, analyzer, execution.Options{
		Rules:       s.rules,
		Fees:        s.cfg.Fees,
		Slippage:    s.cfg.Slippage,
		Latency:     s.cfg.Latency,
		MaxAllocPct: s.cfg.MaxAllocPct,
		Policy:      policy,
		Logger:      s.logger,
		Metrics:     s.metrics,
	})

	runner := &engine.Runner{
		Symbol: req.Symbol,
		Bars:   bars,
		Warmup: strat.Warmup(),
		Market: market,
		OnBar: func(_ int, bar engine.Bar) {
			simBroker.Mark(req.Symbol, bar.Close)
		},
		Logger: s.logger,
	}
	if err := runner.Run(strat, exec); err != nil {
		fail(err)
		return
	}

	for range analyzer.Trades() {
		s.metrics.TradeClosed()
	}

	s.mu.Lock()
	job.Status = "completed"
	job.FinalValue = simBroker.Value()
	job.Trades = analyzer.Trades()
	s.mu.Unlock()

	s.logger.Info("backtest job completed",
		zap.String("job_id", job.JobID),
		zap.Int("trades", len(job.Trades)),
		zap.Float64("final_value", job.FinalValue),
	)
}

// jobSnapshot copies a job's state under the read lock. Handlers serialize
// the copy, never the shared struct runJob mutates.
func (s *server) jobSnapshot(id string) (jobResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobResult{}, false
	}
	return *job, true
}

func (s *server) handleJobStatus(c *gin.Context) {
	job, ok := s.jobSnapshot(c.Param("job_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleJobTrades returns the closed trades of a completed job. With
// ?format=arrow the body is an Arrow IPC stream, otherwise JSON.
func (s *server) handleJobTrades(c *gin.Context) {
	job, ok := s.jobSnapshot(c.Param("job_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	if job.Status != "completed" {
		c.JSON(http.StatusConflict, gin.H{"error": "job not completed", "status": job.Status})
		return
	}

	if c.Query("format") == "arrow" {
		payload, err := s.arrow.EncodeTrades(job.Trades)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", payload)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.JobID, "trades": job.Trades})
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	configPath := flag.String("config", "", "path to TOML config")
	symbolsFlag := flag.String("symbols", "BTCUSDT,ETHUSDT", "symbols to resolve exchange rules for at startup")
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	resolver := exchange.NewResolver(cfg.CachePath, logger)
	rules, err := resolver.EnsureRules(ctx, splitCSV(*symbolsFlag))
	cancel()
	if err != nil {
		// partial rules are usable; jobs for missing symbols get skipped orders
		logger.Warn("exchange rules incomplete", zap.Error(err))
	}

	srv := &server{
		cfg:     cfg,
		rules:   rules,
		metrics: monitoring.NewMetrics(),
		arrow:   arrowstream.NewPipeline(),
		logger:  logger,
		jobs:    make(map[string]*jobResult),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	srv.routes(router)

	go func() {
		logger.Info("http server listening", zap.String("addr", *addr))
		if err := router.Run(*addr); err != nil {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
}

func splitCSV(s string) []string {
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
