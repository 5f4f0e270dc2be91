/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"briefly/config"
	"briefly/db"
	"briefly/sources"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate and register a single source URL",
		ArgsUsage: "<url>",
		Description: `Probes the given URL, detects whether the site publishes a
syndication feed, and registers it as a source. Prints the resulting
source descriptor as JSON on stdout.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "briefly.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"BRIEFLY_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "briefly.toml",
				Usage:   "Path to the tunables file",
				EnvVars: []string{"BRIEFLY_CONFIG"},
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return errors.New("usage: briefly validate <url>")
			}

			// Keep stdout clean for the JSON result
			log.SetOutput(os.Stderr)

			tunables, err := config.Load(ctx.String("config"))
			if err != nil {
				return err
			}

			if err := db.Migrate(ctx.String("database")); err != nil {
				return fmt.Errorf("could not run migrations: %w", err)
			}

			writer, err := db.NewWriter(ctx.String("database"))
			if err != nil {
				return fmt.Errorf("could not open database: %w", err)
			}
			defer writer.Close()

			validator := sources.NewValidator(writer, sources.ValidatorConfig{
				UserAgent: tunables.Scraper.UserAgent,
			})

			descriptor, err := validator.Validate(ctx.Context, ctx.Args().First())
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			encoded, err := json.MarshalIndent(descriptor, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))

			return nil
		},
	}
}
