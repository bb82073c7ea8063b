// Command thinkshare-tui is a terminal client for ThinkShare conversations.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"thinkshare/internal/config"
	"thinkshare/internal/convsync"
	"thinkshare/internal/logger"
	"thinkshare/internal/realtime"
	"thinkshare/internal/rpc"
)

const clientVersion = "thinkshare-tui/0.1"

func main() {
	cfg := config.LoadClient()
	if cfg.Token == "" || cfg.AccountID == "" {
		fmt.Fprintln(os.Stderr, "THINKSHARE_TOKEN and THINKSHARE_ACCOUNT_ID must be set")
		os.Exit(2)
	}

	logPath := os.Getenv("THINKSHARE_LOG_FILE")
	if logPath == "" {
		logPath = "thinkshare-tui.log"
	}
	log, err := logger.NewFile(cfg.LogLevel, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := rpc.New(cfg.APIURL, cfg.Token, rpc.WithLogger(log), rpc.WithTimeout(cfg.RequestTimeout))
	push := realtime.New(cfg.WSURL, cfg.Token,
		realtime.WithLogger(log),
		realtime.WithHeader("X-Device-Id", cfg.DeviceID),
		realtime.WithHeader("X-Client-Version", clientVersion),
	)
	sync := convsync.New(remote, push, cfg.AccountID,
		convsync.WithPollInterval(cfg.PollInterval),
		convsync.WithTypingTTL(cfg.TypingTTL),
		convsync.WithTypingDebounce(cfg.TypingDebounce),
		convsync.WithLogger(log),
	)
	sync.Start(ctx)
	push.Start(ctx, sync)

	p := tea.NewProgram(newModel(sync, cfg.AccountID), tea.WithAltScreen())
	sync.OnError(func(err error) { p.Send(errMsg{err: err}) })
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sync.Changes():
				p.Send(changedMsg{})
			}
		}
	}()

	_, runErr := p.Run()
	cancel()
	_ = sync.Close()
	if err := push.Close(); err != nil {
		log.Debug("push close", zap.Error(err))
	}
	if runErr != nil {
		fmt.Printf("Error: %v\n", runErr)
		os.Exit(1)
	}
}
