package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Printf("prayer-reminder: %s\n", err.Error())
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	app := cli.NewApp()
	app.Name = "prayer-reminder"
	app.HelpName = "prayer-reminder"
	app.Usage = "Reminds you of the five daily prayers."
	app.UsageText = "prayer-reminder [global options] <command> [arguments...]"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file",
			Usage: "load environment variables from `FILE`",
			Value: ".env",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "override PRAYER_LOG_LEVEL (debug, info, warn, error)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "start the reminder with a tray menu",
			Action: runAction,
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "headless",
					Usage: "run without tray or desktop notifications",
				},
			},
		},
		{
			Name:      "times",
			Usage:     "print today's prayer times",
			ArgsUsage: "[location]",
			Action:    timesAction,
		},
		{
			Name:   "info",
			Usage:  "print the detected location and timezone",
			Action: infoAction,
		},
		{
			Name:   "test-sound",
			Usage:  "play the adhan once",
			Action: testSoundAction,
		},
	}
	app.Action = runAction
	return app
}
