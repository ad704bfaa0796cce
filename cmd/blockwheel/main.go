// Command blockwheel drives a standalone blockwheel engine against a single
// backing file: it creates (or reopens) the file, runs a small demo
// workload so the engine's behavior is observable, then waits for a
// shutdown signal.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"

	"github.com/behrlich/blockwheel"
	"github.com/behrlich/blockwheel/internal/interp/file"
	"github.com/behrlich/blockwheel/internal/logging"
)

func main() {
	var (
		path        = flag.String("path", "blockwheel.img", "Path to the backing file")
		sizeStr     = flag.String("size", "64M", "Capacity of the backing file (e.g., 64M, 1G)")
		verbose     = flag.Bool("v", false, "Verbose output")
		defragLimit = flag.Int("defrag-limit", blockwheel.DefaultDefragInProgressLimit, "Max concurrent defrag relocations (0 disables defrag)")
	)
	flag.Parse()

	size, err := parseSize(*sizeStr)
	if err != nil {
		log.Fatalf("invalid size %q: %v", *sizeStr, err)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	interp, err := file.Open(*path)
	if err != nil {
		logger.Error("failed to open backing file", "path", *path, "error", err)
		os.Exit(1)
	}

	cfg := blockwheel.DefaultConfig(interp)
	cfg.Capacity = uint64(size)
	cfg.DefragInProgressLimit = *defragLimit
	cfg.Logger = logger

	engine, err := blockwheel.New(cfg)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("error closing engine", "error", err)
		}
	}()

	logger.Info("engine ready", "path", *path, "size", formatSize(size), "defrag_limit", *defragLimit)

	runDemo(engine, logger)

	fmt.Printf("blockwheel engine running against %s (%s)\n", *path, formatSize(size))
	fmt.Printf("Press Ctrl+C to stop...\n")
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks\n", os.Getpid())

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	if err := engine.Flush(); err != nil {
		logger.Error("flush on shutdown failed", "error", err)
	}
}

// runDemo exercises write/read/flush/info so a fresh engine visibly does
// something useful before the process settles into waiting for a signal.
func runDemo(engine *blockwheel.Engine, logger *logging.Logger) {
	bid, err := engine.Write([]byte("hello, blockwheel"))
	if err != nil {
		logger.Error("demo write failed", "error", err)
		return
	}
	logger.Info("demo block written", "block", bid.String())

	bytes, err := engine.Read(bid)
	if err != nil {
		logger.Error("demo read failed", "block", bid.String(), "error", err)
		return
	}
	logger.Info("demo block read", "block", bid.String(), "payload", string(bytes.Bytes()))

	if err := engine.Flush(); err != nil {
		logger.Error("demo flush failed", "error", err)
		return
	}

	stats := engine.Info()
	logger.Info("engine stats", "occupied_bytes", stats.OccupiedBytes, "free_bytes", stats.FreeBytes, "block_count", stats.BlockCount)
}

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
