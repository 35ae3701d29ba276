package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"cloudeng.io/cmdutil/subcmd"
)

var cmdSet *subcmd.CommandSet

// globalFlags are accepted before any sub-command.
type globalFlags struct {
	ConfigPath string `subcmd:"config,,path to the YAML config file; created with defaults on first run"`
	LogLevel   string `subcmd:"log-level,,override the configured log level (debug|info|error)"`
}

var globals globalFlags

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "dayscounter.yaml")
	}
	return filepath.Join(dir, "dayscounter", "config.yaml")
}

func init() {
	cmdSet = subcmd.NewCommandSet(
		diffCmd(),
		addCmd(),
		ageCmd(),
		doyCmd(),
		exportCmd(),
		watchCmd(),
		serveCmd(),
	)
	cmdSet.Document(`count days between dates, shift dates, and export full-day events as iCalendar files.`)

	gfs := subcmd.NewFlagSet()
	gfs.MustRegisterFlagStruct(&globals, map[string]any{"config": defaultConfigPath()}, nil)
	cmdSet.WithGlobalFlags(gfs)
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cmdSet.MustDispatch(ctx)
}
