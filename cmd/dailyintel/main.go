package main

import (
	"dailyintel/cmd/handlers"
	"dailyintel/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
