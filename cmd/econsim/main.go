// Command econsim is a terminal client for the economy simulation game.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"econsim-terminal/internal/cli"
	"econsim-terminal/internal/logging"
)

func main() {
	// ECONSIM_* overrides may come from a .env file in the working directory.
	_ = godotenv.Load()

	logCfg := logging.DefaultLogConfig()
	logCfg.File = false
	logger := logging.NewLoggerWithConfig(logCfg)

	os.Exit(cli.Execute(context.Background(), logger))
}
