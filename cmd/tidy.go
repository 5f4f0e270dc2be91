/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"briefly/cache"
	"briefly/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the article stores",
		Description: `Tidy up the stores by removing articles that are old.

		Removes article rows older than the cutoff from the database and
		drops the matching records from the read cache. This is to keep
		the database size down and to keep feeds fresh.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "briefly.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"BRIEFLY_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "redis",
				Value:   "localhost:6379",
				Usage:   "Redis address for the article read cache",
				EnvVars: []string{"BRIEFLY_REDIS"},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{"BRIEFLY_REDIS_PASSWORD"},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{"BRIEFLY_REDIS_DB"},
			},
			&cli.IntFlag{
				Name:    "older-than-days",
				Value:   90,
				Usage:   "Remove articles older than this many days",
				EnvVars: []string{"BRIEFLY_OLDER_THAN_DAYS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			olderThanDays := ctx.Int("older-than-days")
			fmt.Println("Database configured: ", database)

			removed, err := db.Tidy(database, olderThanDays)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d articles older than %d days\n", removed, olderThanDays)

			// Drop the same window from the read cache. Failures are not
			// fatal, cache records age out on their TTL anyway.
			reader, err := db.NewReader(database)
			if err != nil {
				return err
			}
			defer reader.Close()

			store, err := cache.NewStore(cache.Config{
				Addr:     ctx.String("redis"),
				Password: ctx.String("redis-password"),
				DB:       ctx.Int("redis-db"),
			})
			if err != nil {
				log.Warnf("Skipping cache prune: %v", err)
				return nil
			}
			defer store.Close()

			feedList, err := reader.ListFeeds(ctx.Context)
			if err != nil {
				return err
			}

			cutoff := time.Now().AddDate(0, 0, -olderThanDays)
			var pruned int64
			for _, feed := range feedList {
				n, err := store.PruneBefore(ctx.Context, feed.ID, cutoff)
				if err != nil {
					log.WithFields(log.Fields{
						"feed": feed.ID,
					}).Warnf("Cache prune failed: %v", err)
					continue
				}
				pruned += n
			}
			fmt.Printf("Pruned %d cache records\n", pruned)

			return nil
		},
	}
}
