// tesouro-quant: pricing, risk and yield curves for Tesouro Direto bonds.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/medicech/tesouro-quant/internal/config"
	"github.com/medicech/tesouro-quant/internal/logging"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root command.
var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tesouroquant",
	Short: "tesouro-quant: Tesouro Direto pricing, risk and yield curves",
	Long: `tesouro-quant
Fetches the Tesouro Direto catalog, computes duration and DV01 per bond,
builds the nominal and real yield curves, derives breakeven inflation,
stress-tests portfolios and answers questions through an LLM assistant.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		log = logging.New(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("mode", "BUY", "quote side: BUY or SELL")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(bondsCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(curveCmd)
	rootCmd.AddCommand(breakevenCmd)
	rootCmd.AddCommand(stressCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tesouro-quant %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status, configuration and stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := utils.NowBRT()
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  tesouro-quant — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus(now))
		fmt.Printf("  Time (BRT):    %s %s\n", utils.FormatDateBR(now), now.Format("15:04"))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Provider:  %s (model: %s)\n", cfg.LLM.Primary, cfg.LLM.Model)
		fmt.Printf("    Ollama URL:    %s (model: %s)\n", cfg.LLM.OllamaURL, cfg.LLM.FallbackModel)
		fmt.Printf("    Data Dir:      %s\n", cfg.Data.Dir)
		fmt.Printf("    History DB:    %s\n", cfg.Data.HistoryDB)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  Market Data:")
		snap, err := openData(cmd.Context(), false).Latest(cmd.Context())
		if err != nil {
			fmt.Printf("    ❌ %v\n", err)
		} else {
			fmt.Printf("    Source:        %s\n", snap.Source)
			fmt.Printf("    Base Date:     %s\n", utils.FormatDateBR(snap.BaseDate))
			fmt.Printf("    Bonds:         %d\n", len(snap.Bonds))
			if p, ok := snap.SelicRate(); ok {
				fmt.Printf("    Selic Meta:    %s\n", utils.FormatRate(p.Value))
			}
		}
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
