package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/key-switcher/internal/engine"
	"github.com/celerix-dev/key-switcher/internal/schedule"
	"github.com/celerix-dev/key-switcher/pkg/sdk"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	command := strings.ToUpper(os.Args[1])
	args := os.Args[2:]

	// Offline commands never touch the daemon.
	switch command {
	case "RESOLVE":
		resolve(args)
		return
	case "MIGRATE":
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		res, err := migrate(ctx, args, logger)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(res)
		return
	}

	client, err := sdk.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	switch command {
	case "HEALTH", "PING":
		h, err := client.Health(ctx)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(h)

	case "ADD_USER":
		if len(args) < 2 {
			log.Fatal("Usage: keyswitch ADD_USER <name> <PID>")
		}
		if err := client.AddUser(ctx, args[0], args[1]); err != nil {
			log.Fatal(err)
		}
		fmt.Println("OK")

	case "TEMP_KEY":
		if len(args) < 1 {
			log.Fatal("Usage: keyswitch TEMP_KEY <PID>")
		}
		key, err := client.TempKey(ctx, args[0])
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(key)

	case "USAGE":
		if len(args) < 1 {
			log.Fatal("Usage: keyswitch USAGE <PID>")
		}
		u, err := client.Usage(ctx, args[0])
		if err != nil {
			log.Fatal(err)
		}
		printJSON(u)

	case "SCHEDULE":
		entries, err := client.Schedule(ctx)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(entries)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

// resolve prints the slot active at the given RFC3339 time, or now.
func resolve(args []string) {
	loc := time.Local
	if tz := os.Getenv("KEYSWITCH_TIMEZONE"); tz != "" && tz != "Local" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			log.Fatalf("Invalid timezone %q: %v", tz, err)
		}
	}

	at := time.Now()
	if len(args) > 0 {
		var err error
		if at, err = time.Parse(time.RFC3339, args[0]); err != nil {
			log.Fatalf("Invalid time %q: %v", args[0], err)
		}
	}

	entry, err := schedule.Build(loc).Resolve(at)
	if err != nil {
		log.Fatal(err)
	}
	printJSON(map[string]any{"key_id": entry.KeyID, "starts_at": entry.At})
}

// migrate copies every record between two backends. Both stores are closed before it returns,
// so a memory destination has flushed its snapshot even when the copy fails halfway.
func migrate(ctx context.Context, args []string, logger zerolog.Logger) (res engine.MigrationResult, err error) {
	if len(args) < 4 {
		return res, errors.New("usage: keyswitch MIGRATE <srcDriver> <srcURL> <dstDriver> <dstURL>")
	}

	src, err := engine.Open(ctx, backendOptions(args[0], args[1]), logger)
	if err != nil {
		return res, fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { err = errors.Join(err, src.Close()) }()

	dst, err := engine.Open(ctx, backendOptions(args[2], args[3]), logger)
	if err != nil {
		return res, fmt.Errorf("failed to open destination: %w", err)
	}
	defer func() { err = errors.Join(err, dst.Close()) }()

	res, err = engine.Migrate(ctx, src, dst)
	if err != nil {
		return res, fmt.Errorf("migration failed after %d records: %w", res.Copied, err)
	}
	return res, nil
}

// backendOptions treats the location of a memory backend as its data directory.
func backendOptions(driver, location string) engine.Options {
	opts := engine.Options{Driver: engine.Driver(strings.ToLower(driver)), Key: os.Getenv("KEYSWITCH_STORE_KEY")}
	if opts.Driver == engine.DriverMemory {
		opts.DataDir = location
	} else {
		opts.URL = location
	}
	return opts
}

func printUsage() {
	fmt.Println("keyswitch - operator CLI for the key switcher daemon")
	fmt.Println("\nUsage:")
	fmt.Println("  keyswitch HEALTH")
	fmt.Println("  keyswitch ADD_USER <name> <PID>")
	fmt.Println("  keyswitch TEMP_KEY <PID>")
	fmt.Println("  keyswitch USAGE <PID>")
	fmt.Println("  keyswitch SCHEDULE")
	fmt.Println("  keyswitch RESOLVE [RFC3339 time]")
	fmt.Println("  keyswitch MIGRATE <srcDriver> <srcURL> <dstDriver> <dstURL>")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  KEYSWITCH_ADDR        Address of the daemon (default: localhost:5000)")
	fmt.Println("  KEYSWITCH_TIMEZONE    Schedule timezone for RESOLVE (default: Local)")
	fmt.Println("  KEYSWITCH_STORE_KEY   Store credential for MIGRATE")
}

func printJSON(v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(bytes))
}
