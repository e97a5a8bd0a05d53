package main

import (
	"github.com/strataline/alignd/internal/server"
	"github.com/strataline/alignd/internal/util"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
