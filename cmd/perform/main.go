package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "perform",
		Usage: "compile text notation and play it over MIDI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file (default ~/.config/go-perform/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level from the config",
			},
		},
		Commands: []*cli.Command{
			portsCommand(),
			compileCommand(),
			playCommand(),
			panicCommand(),
			initCommand(),
		},
	}
}
