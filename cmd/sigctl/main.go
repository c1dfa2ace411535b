package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "operator tool for the signal tracker: probe upstreams, inspect the signal table",
		Flags: []cli.Flag{
			configFlag,
			verboseFlag,
		},
	}

	app.Commands = []*cli.Command{
		priceCommand,
		marketCommand,
		headerCommand,
		rowCommand,
		notifyCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
