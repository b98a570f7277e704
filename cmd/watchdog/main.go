// Command watchdog monitors the signal bot's heartbeat file and posts to the
// alert webhook when the bot stops stamping it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"btlab/services/config"
	"btlab/services/notify"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config")
	checkInterval := flag.Duration("check-interval", 2*time.Minute, "how often to inspect the heartbeat")
	timeout := flag.Duration("timeout", 10*time.Minute, "heartbeat age that triggers an alert")
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
	webhook := cfg.AlertWebhook
	if env := os.Getenv("ALERT_WEBHOOK_URL"); env != "" {
		webhook = env
	}
	sender := notify.NewDiscordSender(webhook)
	if !sender.Configured() {
		logger.Warn("no alert webhook configured, alerts go to the log only")
	}

	ctx := context.Background()
	alert := func(msg string) {
		logger.Warn("alert", zap.String("message", msg))
		if sender.Configured() {
			if err := sender.Send(ctx, msg); err != nil {
				logger.Error("alert send failed", zap.Error(err))
			}
		}
	}

	logger.Info("watchdog started",
		zap.Duration("check_interval", *checkInterval),
		zap.Duration("timeout", *timeout),
	)

	ticker := time.NewTicker(*checkInterval)
	defer ticker.Stop()
	for {
		age, err := notify.HeartbeatAge(cfg.HeartbeatPath)
		switch {
		case err != nil:
			alert(fmt.Sprintf("**Bot offline:** heartbeat unreadable (%v). Bot not started?", err))
		case age > *timeout:
			alert(fmt.Sprintf("**ALERT:** no heartbeat for `%ds`. The bot is probably down or offline.", int(age.Seconds())))
		}
		<-ticker.C
	}
}
