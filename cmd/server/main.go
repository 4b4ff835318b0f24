// Package main provides the AWAP region and density analysis HTTP server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"go.ngs.io/awap/internal/adapter/store/sqlite"
	"go.ngs.io/awap/internal/domain"
	httpHandler "go.ngs.io/awap/internal/http"
	"go.ngs.io/awap/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	envFile := flag.String("env", ".env", "Environment file to load if present")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("awap-server version %s\n", version)
		return
	}

	log := logrus.New()
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load environment file")
	}

	// Load configuration from environment.
	port := getEnv("PORT", "8080")
	maskPath := getEnv("REGION_MASK", "")
	maskVar := getEnv("REGION_MASK_VARIABLE", "region")
	regionName := getEnv("REGION_NAME", "CONAUS")
	regionDefs := getEnv("REGION_DEFS", "")
	dataRoot := getEnv("DATA_ROOT", "")
	dbPath := getEnv("DATABASE", "")
	if lvl, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	if maskPath == "" {
		log.Fatal("REGION_MASK is required")
	}

	log.WithFields(logrus.Fields{"port": port, "mask": maskPath, "data_root": dataRoot}).Info("Starting AWAP server")

	regions, err := usecase.OpenRegionService(usecase.MaskSource{
		Path:     maskPath,
		Variable: maskVar,
		Name:     regionName,
		Defs:     regionDefs,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load region mask")
	}

	// Time series need a data root; the results store is optional.
	var (
		analysis *usecase.AnalysisUseCase
		store    *sqlite.Store
	)
	if dataRoot != "" {
		if dbPath != "" {
			store, err = sqlite.Open(dbPath)
			if err != nil {
				log.WithError(err).Fatal("Failed to open results database")
			}
		}
		analysis = usecase.NewAnalysisUseCase(regions, dataRoot, domain.DefaultCalendar(), store, log)
	} else {
		log.Info("Time series endpoint disabled (no DATA_ROOT configured)")
	}

	router := httpHandler.SetupRouter(regions, analysis)

	addr := fmt.Sprintf(":%s", port)
	log.Infof("Server listening on %s", addr)
	log.Infof("Health check: http://localhost:%s/health", port)

	err = router.Run(addr)
	// log.Fatal exits without running deferred calls.
	if store != nil {
		if cerr := store.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close results database")
		}
	}
	if err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("AWAP Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  awap-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println("  -env FILE      Environment file to load (default: .env)")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  REGION_MASK             AWAP mask stem (.hdr/.flt[/.csv]) or NetCDF file (required)")
	fmt.Println("  REGION_MASK_VARIABLE    NetCDF variable holding category ids (default: region)")
	fmt.Println("  REGION_NAME             Name of the top-level region (default: CONAUS)")
	fmt.Println("  REGION_DEFS             Region definition TOML (default: built-in Australian states)")
	fmt.Println("  DATA_ROOT               AWAP collection root for time series (optional)")
	fmt.Println("  DATABASE                SQLite results written by the awap CLI (optional, read-only here)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               logrus level (default: info)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET  /health                        Health check")
	fmt.Println("  GET  /v1/regions                    Top-level region and sub-region table")
	fmt.Println("  GET  /v1/regions/:id                Sub-region geometry")
	fmt.Println("  GET  /v1/regions/:id/mask           Sub-region mask")
	fmt.Println("  GET  /v1/regions/:id/timeseries     Area-weighted time series (needs DATA_ROOT)")
	fmt.Println("  POST /v1/divergence                 Windowed densities and KL divergence matrix")
	fmt.Println("  GET  /v1/results/series             Stored time series (needs DATABASE)")
	fmt.Println("  GET  /v1/results/divergence         Stored divergence summaries (needs DATABASE)")
	fmt.Println()
}
