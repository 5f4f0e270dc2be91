/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"briefly/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func discoverCmd() *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "Discover news sources for a topic",
		ArgsUsage: "<topic>",
		Description: `Runs the discovery pipeline for the given topic: searches the web
for candidate sites, validates each candidate and samples a few
articles to weed out dead or stale sites. Surviving sources are
registered and printed.

Requires a search provider API key and an extraction backend API key.`,
		Flags: append(append([]cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   5,
				Usage:   "Number of sources to return",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the source descriptors as JSON",
			},
		}, storeFlags()...), providerFlags()...),
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return errors.New("usage: briefly discover <topic>")
			}

			// Keep stdout clean for the results
			log.SetOutput(os.Stderr)

			if err := db.Migrate(ctx.String("database")); err != nil {
				return fmt.Errorf("could not run migrations: %w", err)
			}

			stack, err := newStack(ctx)
			if err != nil {
				return err
			}
			defer stack.Close()

			topic := ctx.Args().First()
			fmt.Fprintln(os.Stderr, "Discovering sources for:", topic)

			descriptors, err := stack.discovery.Discover(ctx.Context, topic, ctx.Int("count"))
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}

			if ctx.Bool("json") {
				encoded, err := json.MarshalIndent(descriptors, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}

			if len(descriptors) == 0 {
				fmt.Println("No sources found")
				return nil
			}

			for _, descriptor := range descriptors {
				fmt.Println(descriptor.DisplayName)
				fmt.Println("  url:", descriptor.URL)
				fmt.Println("  kind:", descriptor.FeedKind)
				if descriptor.FeedURL != "" {
					fmt.Println("  feed:", descriptor.FeedURL)
				}
				fmt.Println("  samples:", descriptor.SampleCount)
			}

			return nil
		},
	}
}
