package main

import (
	"context"
	"os"

	"github.com/username/stakeledger/src/commands"
	"github.com/username/stakeledger/src/config"
	"github.com/username/stakeledger/src/logger"
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel, os.Stderr)

	if err := commands.NewRootCommand(config.Cfg).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
