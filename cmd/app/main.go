package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"webpsync/internal/cli"
)

const version = "0.3.0"

func main() {
	root := cli.NewRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
