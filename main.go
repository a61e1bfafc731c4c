package main

import (
	"errors"
	"os"

	"github.com/warehousekit/dispatchd/cmd"
	"github.com/warehousekit/dispatchd/core/engine"
	"github.com/warehousekit/dispatchd/infra/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.New("main").Errorf("%v", err)
		switch {
		case errors.Is(err, engine.ErrBreakerTripped):
			os.Exit(3)
		case errors.Is(err, cmd.ErrRunFailed):
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}
