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

func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "Refresh a feed once",
		ArgsUsage: "<feed-id>",
		Description: `Pulls the latest articles from every active source linked to the
given feed, writes new ones to both stores and prints the refresh
summary as JSON on stdout.

Intended for cron-driven refreshes next to a running server.`,
		Flags: append(storeFlags(), providerFlags()...),
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return errors.New("usage: briefly refresh <feed-id>")
			}

			// Keep stdout clean for the JSON summary
			log.SetOutput(os.Stderr)

			if err := db.Migrate(ctx.String("database")); err != nil {
				return fmt.Errorf("could not run migrations: %w", err)
			}

			stack, err := newStack(ctx)
			if err != nil {
				return err
			}
			defer stack.Close()

			summary, err := stack.service.Refresh(ctx.Context, ctx.Args().First())
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}

			encoded, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))

			return nil
		},
	}
}
