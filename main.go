package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"solguess/pkg/config"
	"solguess/pkg/guesser"
	"solguess/pkg/models"
	"solguess/pkg/rpc"
	"solguess/pkg/server"
	"solguess/pkg/tui"
	"solguess/pkg/wallet"
	"solguess/pkg/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	dryRunFlag := flag.Bool("dry-run", false, "Perform a trial run with no changes made")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("solguess version %s\n", Version)
		os.Exit(0)
	}

	// Secrets may come from a .env file next to the binary.
	envErr := godotenv.Load()

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		log.Logger = zerolog.New(io.Discard)
		os.Exit(runConfigTest(context.Background(), os.Stdout, cfg, path, *jsonFlag, *dryRunFlag))
	}

	closeLog, err := setupLogging(cfg, *serverFlag)
	if err != nil {
		fmt.Printf("Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	if err := run(cfg, *serverFlag, *portFlag); err != nil {
		log.Error().Err(err).Msg("exiting")
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging sends logs to the log file, since the terminal belongs to
// the UI. Server mode logs to the console instead.
func setupLogging(cfg config.Config, serverMode bool) (func(), error) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if serverMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return func() {}, nil
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = config.DefaultLogPath()
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { _ = f.Close() }, nil
}

func run(cfg config.Config, serverMode bool, port int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := wallet.Open(cfg.KeystoreDir, os.Getenv(config.EnvPrivateKey), os.Getenv(config.EnvPassphrase))
	if err != nil {
		log.Warn().Err(err).Msg("wallet unavailable, continuing read-only")
		provider = nil
	}

	conn, err := rpc.Connect(ctx, cfg, provider)
	if err != nil {
		return err
	}
	defer conn.Close()

	contract := guesser.NewContract(cfg.Contract(), conn.Client,
		guesser.WithEventBackend(conn.EventClient),
		guesser.WithLogPollInterval(cfg.EventPollInterval()),
		guesser.WithReceiptTimeout(cfg.ReceiptTimeout()),
	)
	log.Info().Str("contract", contract.Address().Hex()).Str("rpc", conn.URL).Bool("read_only", conn.Session.ReadOnly).Msg("connected")

	opts := []watcher.Option{watcher.WithPollInterval(cfg.PollInterval())}
	if conn.Provider != nil {
		opts = append(opts, watcher.WithProvider(conn.Provider, conn.ChainID))
	}
	w := watcher.NewWatcher(contract, &watcher.HTTPPriceSource{URL: cfg.PriceURL}, conn.Session, opts...)
	w.Start(ctx)
	defer w.Stop()

	if serverMode {
		log.Info().Int("port", port).Bool("read_only", conn.Session.ReadOnly).Msg("running in server mode")
		return server.NewServer(w).Start(ctx, port)
	}

	return tui.Start(w, tui.Options{
		NetworkName: cfg.Network.Name,
		ExplorerURL: cfg.Network.ExplorerURL,
		Version:     Version,
	})
}

// runConfigTest dials every configured endpoint, checks the chain id and
// the contract code, probes the price endpoint and fills a missing chain
// id. It returns the process exit code.
func runConfigTest(ctx context.Context, out io.Writer, cfg config.Config, path string, jsonOut, dryRun bool) int {
	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
		Network:        cfg.Network.Name,
		ConfigChainID:  cfg.Network.ChainID,
		DryRun:         dryRun,
	}
	printf := func(format string, args ...interface{}) {
		if !jsonOut {
			_, _ = fmt.Fprintf(out, format, args...)
		}
	}
	finish := func(code int) int {
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		}
		return code
	}

	printf("Testing configuration at: %s\n", path)

	if err := config.Validate(cfg); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		printf("Error: %v\n", err)
		return finish(1)
	}

	urls := append([]string{}, cfg.Network.RPCURLs...)
	if cfg.Network.ReadOnlyRPCURL != "" {
		urls = append(urls, cfg.Network.ReadOnlyRPCURL)
	}
	contract := common.HexToAddress(cfg.ContractAddress)

	printf("Testing network: %s\n", cfg.Network.Name)
	var observed int64
	for _, url := range urls {
		printf("  RPC: %s ... ", url)
		res := rpc.CheckRPC(ctx, url, contract)
		if res.Status != "ok" {
			printf("Failed: %s\n", res.Error)
			report.RPCs = append(report.RPCs, res)
			continue
		}
		printf("OK (ChainID: %d)", res.ChainID)

		if observed == 0 {
			observed = res.ChainID
			report.ObservedChainID = res.ChainID
		} else if observed != res.ChainID {
			printf(" - WARNING: ChainID mismatch with previous RPC (%d)", observed)
			report.Inconsistent = true
		}

		switch {
		case cfg.Network.ChainID == 0:
			cfg.Network.ChainID = res.ChainID
			report.ConfigUpdated = true
			printf(" - UPDATED CONFIG")
			if dryRun {
				printf(" (DRY RUN)")
			}
		case cfg.Network.ChainID != res.ChainID:
			res.Error = fmt.Sprintf("Mismatch! Expected %d", cfg.Network.ChainID)
			printf(" - MISMATCH! Expected %d", cfg.Network.ChainID)
		default:
			printf(" - Verified")
		}
		if !res.ContractCode {
			printf(" - no contract code at %s", contract.Hex())
		}
		printf("\n")
		report.RPCs = append(report.RPCs, res)
	}

	printf("Price endpoint: %s ... ", cfg.PriceURL)
	if p, err := rpc.FetchEthPrice(ctx, cfg.PriceURL); err != nil {
		report.PriceError = err.Error()
		printf("Failed: %v\n", err)
	} else {
		report.PriceOK = true
		printf("OK (%s)\n", p.Price)
	}

	if report.Inconsistent {
		printf("\nWARNING: Inconsistent RPCs detected!\n")
	}

	if report.ConfigUpdated {
		printf("\nUpdating configuration with fetched Chain ID...\n")
		if dryRun {
			printf("Dry run enabled: Configuration NOT saved.\n")
		} else if err := config.SaveConfig(cfg, path); err != nil {
			report.SaveError = err.Error()
			printf("Failed to save config: %v\n", err)
		} else {
			printf("Configuration saved successfully.\n")
		}
	}

	return finish(0)
}
