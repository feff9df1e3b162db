package main

import (
	"context"
	"fmt"
	"os"

	"expensio/internal/cli"
	"expensio/internal/config"
	"expensio/internal/ctl"
	"expensio/internal/log"
)

func main() {
	cli.LoadEnvFile()

	// Logs go to stderr and stay quiet unless LOG_LEVEL asks otherwise.
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	cfg.Output = os.Stderr

	root := ctl.NewRootCommand(ctl.Options{
		Config: config.Load(),
		Logger: log.New(cfg),
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
