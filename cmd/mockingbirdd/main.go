// Command mockingbirdd runs the dubbing daemon: it drains the job queue
// through the pipeline stages and serves the local control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"mockingbird/internal/config"
	"mockingbird/internal/daemonrun"
)

func main() {
	var configPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "mockingbirdd: %v\n", err)
		os.Exit(1)
	}
}
