package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hurttlocker/sociograph/internal/config"
	"github.com/hurttlocker/sociograph/internal/dataset"
	"github.com/hurttlocker/sociograph/internal/logger"
	"github.com/hurttlocker/sociograph/internal/network"
	"github.com/hurttlocker/sociograph/internal/store"
)

const version = "0.1.0"

var (
	globalDBPath     string
	globalDataset    string
	globalConfigPath string
	globalLogLevel   string
	globalJSON       bool
)

// stdout receives command output; tests swap it.
var stdout io.Writer = os.Stdout

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	switch args[0] {
	case "import":
		return runImport(args[1:])
	case "export":
		return runExport(args[1:])
	case "clusters":
		return runClusters(args[1:])
	case "filter":
		return runFilter(args[1:])
	case "wordfreq":
		return runWordFreq(args[1:])
	case "trending":
		return runTrending(args[1:])
	case "users":
		return runUsers(args[1:])
	case "audience":
		return runAudience(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	case "mcp":
		return runMCP(args[1:])
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "sociograph %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// parseGlobalFlags extracts flags shared by every command and returns the
// remaining arguments.
func parseGlobalFlags(args []string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--db" && i+1 < len(args):
			i++
			globalDBPath = args[i]
		case strings.HasPrefix(arg, "--db="):
			globalDBPath = strings.TrimPrefix(arg, "--db=")
		case arg == "--dataset" && i+1 < len(args):
			i++
			globalDataset = args[i]
		case strings.HasPrefix(arg, "--dataset="):
			globalDataset = strings.TrimPrefix(arg, "--dataset=")
		case arg == "--config" && i+1 < len(args):
			i++
			globalConfigPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			globalConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--log-level" && i+1 < len(args):
			i++
			globalLogLevel = args[i]
		case strings.HasPrefix(arg, "--log-level="):
			globalLogLevel = strings.TrimPrefix(arg, "--log-level=")
		case arg == "--json":
			globalJSON = true
		default:
			rest = append(rest, arg)
		}
	}
	return rest
}

// resolveConfig layers the config file, env and global flags. cliOpts
// carries command-specific overrides.
func resolveConfig(cliOpts config.ResolveOptions) (config.ResolvedConfig, error) {
	cliOpts.ConfigPath = globalConfigPath
	cliOpts.CLIDBPath = globalDBPath
	cliOpts.CLIDataset = globalDataset
	cliOpts.CLILogLevel = globalLogLevel
	cfg, err := config.ResolveConfig(cliOpts)
	if err != nil {
		return cfg, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel.Value)
	if err != nil {
		return cfg, err
	}
	logger.SetupDefault(os.Stderr, level)
	return cfg, nil
}

func openStore(cfg config.ResolvedConfig) (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// loadNetwork reads the dataset file when one is configured and the store
// otherwise. The returned store is nil in the dataset case; callers close it.
func loadNetwork(ctx context.Context, cfg config.ResolvedConfig) (*network.Network, store.Store, error) {
	if path := cfg.Dataset.Value; path != "" {
		n, err := dataset.Load(path, dataset.Options{})
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("network loaded", "source", "dataset", "path", path, "users", n.Len(), "posts", n.PostCount())
		return n, nil, nil
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	n, err := s.LoadNetwork(ctx)
	if err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("loading network: %w", err)
	}
	slog.Debug("network loaded", "source", "store", "users", n.Len(), "posts", n.PostCount())
	return n, s, nil
}

func printUsage() {
	fmt.Fprintf(stdout, `sociograph %s — social graph analysis

Usage:
  sociograph [global flags] <command> [arguments]

Commands:
  import <file>       Load a JSON/YAML dataset into the database
  export <file>       Write the database to a JSON/YAML dataset
  clusters            Group users connected by one connection type
  filter              List posts matching attribute and keyword filters
  wordfreq            Word frequencies of the filtered posts
  trending            Rank the filtered posts by engagement
  users               List users by post activity, gender and country
  audience <post>     List viewers of a post by age range or location
  stats               Show network and database statistics
  serve               Run the HTTP JSON API
  mcp                 Run the MCP server on stdio
  version             Print version

Global Flags:
  --db <path>         Database path (default ~/.sociograph/sociograph.db)
  --dataset <file>    Analyse a dataset file instead of the database
  --config <path>     Config file (default ~/.sociograph/config.yaml)
  --log-level <lvl>   debug, info, warn or error
  --json              Machine-readable output

Filter Flags (filter, wordfreq, trending):
  --include k1,k2     Keep posts containing any keyword
  --exclude k1,k2     Drop posts containing any keyword
  --attr key=value    Require an author attribute (repeatable)

Command Flags:
  clusters   --type <t> --undirected
  wordfreq   --top <n>
  trending   --criterion views|comments|combined --top <n>
  users      --min-posts <n> --max-posts <n> --gender <g> --country <c>
  audience   --min-age <n> --max-age <n> | --country <c> --region <r>
  import     --sanitize-html
  serve      --port <p>
`, version)
}
