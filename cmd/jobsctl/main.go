package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rawdatain/backoffice/cmd/jobsctl/cli"
	"github.com/rawdatain/backoffice/internal/app"
)

func main() {
	redisAddr := flag.String("redis", "", "redis address (defaults to REDIS_ADDR)")
	month := flag.String("month", "", "month to roll up, YYYY-MM")
	retention := flag.Duration("retention", 72*time.Hour, "idempotency key retention")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: jobsctl [flags] trigger <task>|stats|archived\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	addr := *redisAddr
	if addr == "" {
		if cfg, err := app.LoadConfig(); err == nil {
			addr = cfg.RedisAddr
		} else {
			addr = "127.0.0.1:6379"
		}
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c := cli.NewJobsCLI(addr)
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("close jobs cli", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch flag.Arg(0) {
	case "trigger":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		info, err := c.Trigger(ctx, flag.Arg(1), cli.TriggerOptions{Month: *month, Retention: *retention})
		if err != nil {
			logger.Error("trigger", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("enqueued %s as %s\n", info.Type, info.ID)
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "archived":
		tasks, err := c.ListArchived(ctx, 20)
		if err != nil {
			logger.Error("list archived", slog.Any("error", err))
			os.Exit(1)
		}
		for _, task := range tasks {
			fmt.Printf("%s\t%s\t%s\n", task.ID, task.Type, task.LastErr)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}
