package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mstgnz/gopaytr/infra/config"
	"github.com/mstgnz/gopaytr/infra/logger"
	"github.com/mstgnz/gopaytr/provider"
)

const usage = `usage: credstore [flags] save|list|delete

Manages PayTR merchant credentials in the SQLite store read by the service
when PAYTR_CREDENTIALS_DB is set. The merchant key and salt default to
PAYTR_MERCHANT_KEY and PAYTR_MERCHANT_SALT so they stay out of shell history.

flags:
`

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		os.Exit(1)
	}

	logger.InitGlobalLogger(logger.SystemLoggerConfig{
		EnableConsole: true,
		MinLevel:      logger.ParseLevel(config.GetEnv("LOGGING_LEVEL", "info")),
		Format:        config.GetEnv("LOG_FORMAT", "console"),
		Service:       "gopaytr-credstore",
		Environment:   config.GetEnv("ENVIRONMENT", "development"),
	}, nil)

	var (
		dbPath  = flag.String("db", config.GetEnv("PAYTR_CREDENTIALS_DB", "gopaytr.db"), "path of the SQLite credential store")
		profile = flag.String("profile", config.GetEnv("PAYTR_MERCHANT_PROFILE", "default"), "merchant profile name")
		id      = flag.String("id", config.GetEnv("PAYTR_MERCHANT_ID", ""), "PayTR merchant id")
		key     = flag.String("key", config.GetEnv("PAYTR_MERCHANT_KEY", ""), "PayTR merchant key")
		salt    = flag.String("salt", config.GetEnv("PAYTR_MERCHANT_SALT", ""), "PayTR merchant salt")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	store, err := config.NewSQLiteStorage(*dbPath)
	if err != nil {
		logger.Fatal("Failed to open credential store", err, profileContext(*dbPath, ""))
	}
	defer store.Close()

	name := strings.TrimSpace(*profile)
	if name == "" {
		logger.Fatal("Invalid arguments", errors.New("profile is required"))
	}

	switch flag.Arg(0) {
	case "save":
		creds := provider.Credentials{
			MerchantID:   strings.TrimSpace(*id),
			MerchantKey:  strings.TrimSpace(*key),
			MerchantSalt: strings.TrimSpace(*salt),
		}
		if !creds.Complete() {
			logger.Fatal("Invalid arguments", errors.New("merchant id, key and salt are all required"), profileContext(*dbPath, name))
		}
		if err := store.SaveCredentials(name, creds); err != nil {
			logger.Fatal("Failed to save credentials", err, profileContext(*dbPath, name))
		}
		logger.Info("Saved merchant credentials", logger.LogContext{
			MerchantID: creds.MerchantID,
			Provider:   "paytr",
			Fields:     map[string]any{"db": *dbPath, "profile": name},
		})

	case "list":
		merchants, err := store.ListProfiles()
		if err != nil {
			logger.Fatal("Failed to list profiles", err, profileContext(*dbPath, ""))
		}
		if len(merchants) == 0 {
			logger.Info("No profiles stored", profileContext(*dbPath, ""))
			return
		}
		for _, m := range merchants {
			fmt.Printf("%-20s %-12s %s\n", m.Profile, m.MerchantID, m.UpdatedAt.Format("2006-01-02 15:04:05"))
		}

	case "delete":
		if err := store.DeleteCredentials(name); err != nil {
			logger.Fatal("Failed to delete credentials", err, profileContext(*dbPath, name))
		}
		logger.Info("Deleted merchant profile", profileContext(*dbPath, name))

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func profileContext(dbPath, profile string) logger.LogContext {
	fields := map[string]any{"db": dbPath}
	if profile != "" {
		fields["profile"] = profile
	}
	return logger.LogContext{Provider: "paytr", Fields: fields}
}
