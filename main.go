package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "sitesearch",
		Usage: "crawl a fixed set of sites and search them by lemma",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML config",
				EnvVars: []string{"DEISEARCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "text or json",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serveAction,
			},
			{
				Name:   "index",
				Usage:  "index every configured site and exit",
				Action: indexAction,
			},
			{
				Name:      "index-page",
				Usage:     "fetch and re-index a single page",
				ArgsUsage: "<url>",
				Action:    indexPageAction,
			},
			{
				Name:      "search",
				Usage:     "query the index",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "site", Usage: "restrict results to one configured site"},
					&cli.IntFlag{Name: "offset", Usage: "results to skip"},
					&cli.IntFlag{Name: "limit", Usage: "results to return"},
				},
				Action: searchAction,
			},
			{
				Name:   "stats",
				Usage:  "print index statistics",
				Action: statsAction,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		newLogger("info", "text").Error("sitesearch failed", "err", err)
		os.Exit(1)
	}
}
