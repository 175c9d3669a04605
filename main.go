package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"go.voxtype.dev/voxtype/internal/app"
	"go.voxtype.dev/voxtype/internal/types"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	logger.Info("starting voxtype", "version", version, "commit", commit, "date", date)

	service := app.New(version, logger)
	service.OnSnapshot(func(view types.StatusView) {
		printStatus(view)
	})

	if err := service.Init(); err != nil {
		logger.Error("init", "error", err)
		os.Exit(1)
	}
	defer service.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	fmt.Println("commands: start, stop, status, latency, creds, reset, quit")
	for {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := dispatch(service, line, logger); quit {
				return
			}
		}
	}
}

func dispatch(service *app.Service, line string, logger *slog.Logger) (quit bool) {
	switch line {
	case "":
	case "start":
		if err := service.StartRecording(); err != nil {
			logger.Error("start", "error", err)
		}
	case "stop":
		if err := service.StopRecording(); err != nil {
			logger.Error("stop", "error", err)
		}
	case "status":
		printStatus(service.Status())
	case "latency":
		printLatency(service.Latency())
	case "creds":
		printCredentials(service.Credentials())
	case "reset":
		if err := service.Reset(); err != nil {
			logger.Error("reset", "error", err)
		}
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q\n", line)
	}
	return false
}

func printStatus(view types.StatusView) {
	fmt.Printf("[%s] %s", view.Phase, view.Status)
	if view.LiveText != "" && view.FinalText == "" {
		fmt.Printf(" | %s", view.LiveText)
	}
	if view.FinalText != "" {
		fmt.Printf(" | %s (%s)", view.FinalText, view.Source)
	}
	if view.Failure != "" {
		fmt.Printf(" | failure: %s", view.Failure)
	}
	fmt.Println()
}

func printLatency(views []types.LatencyView) {
	if len(views) == 0 {
		fmt.Println("no latency samples yet")
		return
	}
	for _, v := range views {
		fmt.Printf("%-20s %-14s n=%-3d p50=%dms p95=%dms\n",
			v.Key, v.Dimension, v.Count, v.P50MS, v.P95MS)
	}
}

func printCredentials(views []types.CredentialView) {
	if len(views) == 0 {
		fmt.Println("no credentials configured")
		return
	}
	for _, v := range views {
		fmt.Printf("%-12s %-10s %-20s key=%s\n", v.ID, v.Type, v.Name, v.KeyHint)
	}
}
