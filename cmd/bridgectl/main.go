// Command bridgectl maintains the reading archive and decodes payloads
// offline.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"ruuvigw-bridge/internal/db"
	"ruuvigw-bridge/internal/db/migrate"
	"ruuvigw-bridge/internal/envelope"
	"ruuvigw-bridge/internal/ruuvi"
)

const usage = `usage: %s <command>
  migrate          apply pending schema migrations to SQLITE_PATH
  versions         list applied migrations
  decode <hex>     decode Ruuvi manufacturer data and print it as JSON
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "migrate":
		err = withDB(func(conn *sql.DB) error {
			if err := migrate.Run(ctx, conn, slog.Default()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		})
	case "versions":
		err = withDB(func(conn *sql.DB) error {
			versions, err := migrate.Versions(ctx, conn)
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Println(v)
			}
			return nil
		})
	case "decode":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, usage, os.Args[0])
			os.Exit(1)
		}
		err = decode(os.Stdout, os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func withDB(fn func(*sql.DB) error) error {
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		return fmt.Errorf("SQLITE_PATH is not set")
	}
	conn, err := db.Open(db.Options{Path: path})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()
	return fn(conn)
}

// decode accepts either manufacturer data (starting 9904) or a whole
// advertisement as relayed in the gateway's "data" field.
func decode(w io.Writer, s string) error {
	s = strings.ToUpper(strings.TrimSpace(s))

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(s, "9904") {
		data, err = ruuvi.ParseHex(s)
	} else {
		data, err = envelope.ManufacturerData(s)
	}
	if err != nil {
		return err
	}

	rec, err := ruuvi.Decode(data)
	if err != nil {
		return err
	}

	out := map[string]any{"format": rec.Format.String()}
	for _, rd := range rec.Readings {
		out[string(rd.Metric)] = rd.Value
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
