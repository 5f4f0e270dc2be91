package db

import (
	"database/sql"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes articles scraped more than olderThanDays ago from the
// database. The read cache expires on its own; this keeps the relational
// store from growing unbounded.
func Tidy(database string, olderThanDays int) (int64, error) {
	db, err := writeConnection(database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return tidy(db, olderThanDays)
}

func tidy(db *sql.DB, olderThanDays int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour).Unix()

	deleteArticles := sb.NewDeleteBuilder()
	query, args := deleteArticles.DeleteFrom("articles").Where(deleteArticles.LessEqualThan("scraped_at", cutoff)).Build()

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Info("Tidying database")

	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return removed, nil
}
