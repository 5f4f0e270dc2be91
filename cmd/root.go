/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "briefly",
		Usage: "Topic-driven news source discovery and article sync",
		Description: `Briefly turns a topic query into a set of validated news sources
		and keeps their articles synced into a dual store: an SQLite
		database as the system of record and a Redis read cache holding
		the full article bodies.

		Sources are found through web search, validated by probing the
		site and sampling a few articles through a structured extraction
		backend, and grouped into feeds. Feeds are refreshed on demand,
		writing every new article to both stores and deduplicating on
		the way in.

		Flags can generally be set via environment variables, e.g.:

		--database => BRIEFLY_DATABASE=briefly.db
		--port => BRIEFLY_PORT=3000
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			validateCmd(),
			discoverCmd(),
			refreshCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute runs the root app and exits non-zero on error.
func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
