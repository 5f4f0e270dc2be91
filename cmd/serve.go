/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"briefly/db"
	"briefly/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the briefly HTTP API",
		Description: `Starts the briefly HTTP server.

Runs database migrations, opens the SQLite store and the Redis read
cache, and exposes the feed, source and discovery operations as a JSON
API on the configured port.`,
		Flags: append(append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"BRIEFLY_PORT"},
			},
		}, storeFlags()...), providerFlags()...),
		Action: func(ctx *cli.Context) error {
			fmt.Println("Starting briefly...")

			if err := db.Migrate(ctx.String("database")); err != nil {
				return fmt.Errorf("could not run migrations: %w", err)
			}

			stack, err := newStack(ctx)
			if err != nil {
				return err
			}
			defer stack.Close()

			app := server.Server(&server.ServerConfig{
				Service:   stack.service,
				Validator: stack.validator,
				Discovery: stack.discovery,
				DB:        stack.reader,
				Cache:     stack.cache,
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Errorf("Error shutting down server: %v", err)
				}
			}()

			fmt.Println("Starting server...")
			if err := app.Listen(fmt.Sprintf(":%d", ctx.Int("port"))); err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}

			fmt.Println("Done!")
			return nil
		},
	}
}
