package main

import (
	"vmbroker/cmd"
	"vmbroker/internal/logging"
)

func main() {
	if err := logging.InitLogger(); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logging.Sync()
	}()

	cmd.Execute()
}
