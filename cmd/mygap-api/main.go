// Package main is the entry point for the MyGAP scraper API server.
package main

import (
	"os"

	"github.com/agridata-my/mygap-scraper-server/cmd/mygap-api/app"
	"github.com/agridata-my/mygap-scraper-server/internal/logger"
)

func main() {
	logger.Initialize()
	defer logger.Sync()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Errorf("Command failed: %v", err)
		os.Exit(1)
	}
}
