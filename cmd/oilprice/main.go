// Oil Price Trend Service
// This application serves historical crude oil prices over JSON-RPC 2.0 and
// lets operators run the same query from the command line.
//
// Usage:
//
//	oilprice serve --config oilprice.yaml
//	oilprice query --start 2020-01-01 --end 2020-01-31 --format table
//
// For detailed help on any command, use: oilprice <command> --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// CLI version information
const (
	Version    = "1.0.0"
	AppName    = "oilprice"
	ConfigFile = "oilprice.yaml"
	EnvFile    = ".env"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
)

// GlobalFlags are accepted before the command name.
type GlobalFlags struct {
	ConfigPath string
	EnvFile    string
	Version    bool
	Help       bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	global, rest, err := parseGlobalFlags(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		return ExitUsageError
	}

	if global.Version {
		fmt.Printf("%s version %s\n", AppName, Version)
		return ExitSuccess
	}
	if global.Help || len(rest) == 0 {
		if len(rest) > 0 {
			printCommandHelp(rest[0])
		} else {
			printUsage()
		}
		if global.Help {
			return ExitSuccess
		}
		return ExitUsageError
	}

	command, args := rest[0], rest[1:]
	if command == "help" {
		if len(args) > 0 {
			printCommandHelp(args[0])
		} else {
			printUsage()
		}
		return ExitSuccess
	}
	if command != "serve" && command != "query" {
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		return ExitUsageError
	}
	if hasHelpFlag(args) {
		printCommandHelp(command)
		return ExitSuccess
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx, global, command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize: %v\n", err)
		return ExitConfigError
	}
	defer app.Close()

	switch command {
	case "serve":
		if err := app.handleServe(ctx); err != nil {
			app.logger.Error("Server failed", "error", err)
			return ExitConnectionErr
		}
	case "query":
		if err := app.handleQuery(ctx, args, os.Stdout); err != nil {
			app.logger.Error("Query failed", "error", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitDataError
		}
	}
	return ExitSuccess
}

// parseGlobalFlags consumes leading options and returns the remaining arguments.
func parseGlobalFlags(args []string) (*GlobalFlags, []string, error) {
	flags := &GlobalFlags{
		ConfigPath: ConfigFile,
		EnvFile:    EnvFile,
	}

	i := 0
	for ; i < len(args) && strings.HasPrefix(args[i], "-"); i++ {
		switch args[i] {
		case "--config", "-c":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--config requires a value")
			}
			flags.ConfigPath = args[i+1]
			i++
		case "--env-file":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--env-file requires a value")
			}
			flags.EnvFile = args[i+1]
			i++
		case "--version", "-v":
			flags.Version = true
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, args[i:], nil
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Printf(`%s - Oil Price Trend Service v%s

USAGE:
    %s [global options] <command> [options]

COMMANDS:
    serve       Start the JSON-RPC HTTP server
    query       Run one GetOilPriceTrend call and print the prices

GLOBAL OPTIONS:
    --config, -c   Config file, JSON or YAML (default: %s)
    --env-file     Dotenv file loaded before the environment (default: %s)
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Serve on the configured port
    %s --config oilprice.yaml serve

    # Print January 2020 prices as CSV
    %s query --start 2020-01-01 --end 2020-01-31 --format csv

CONFIGURATION:
    Configuration can be provided via:
    - Config file: %s (YAML) or any .json file
    - Environment variables: OILPRICE_* (e.g., OILPRICE_URL, OILPRICE_CLIENT_NAME)

    Example config file:
    upstream:
      client_name: oilprice-trend
      url: https://example.com/oil/brent.json
    cache:
      duration_ms: 3600000

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, ConfigFile, EnvFile, AppName, AppName, ConfigFile, AppName)
}

func printCommandHelp(command string) {
	switch command {
	case "serve":
		fmt.Printf(`Start the JSON-RPC HTTP server

USAGE:
    %s serve

ENDPOINTS:
    POST /api/oilprice   JSON-RPC 2.0 GetOilPriceTrend (also POST /)
    GET  /healthz        Liveness
    GET  /readyz         Upstream reachability
    GET  /metrics        Prometheus metrics (when enabled)

The server stops gracefully on SIGINT or SIGTERM.
`, AppName)
	case "query":
		fmt.Printf(`Run one GetOilPriceTrend call through the full stack

USAGE:
    %s query --start YYYY-MM-DD --end YYYY-MM-DD [options]

OPTIONS:
    --start, -s    First date of the range, inclusive (required)
    --end, -e      Last date of the range, inclusive (required)
    --format, -f   Output format: json, table, csv (default: table)
    --help, -h     Show this help
`, AppName)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
	}
}
