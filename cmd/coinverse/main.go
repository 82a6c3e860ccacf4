// coinverse — currency converter and AI-assisted price comparison
// for the southern cone markets.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluecoinverse/coinverse/internal/config"
	"github.com/bluecoinverse/coinverse/internal/convert"
	"github.com/bluecoinverse/coinverse/internal/currency"
	"github.com/bluecoinverse/coinverse/internal/llm"
	"github.com/bluecoinverse/coinverse/internal/rates"
	"github.com/bluecoinverse/coinverse/internal/search"
	"github.com/bluecoinverse/coinverse/internal/store"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set in PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coinverse",
	Short: "coinverse — currency converter and AI price comparison",
	Long: `coinverse converts between CLP, USD, ARS (blue rate), BRL, GBP, EUR
and BTC using live market rates, and compares product prices across
those markets with AI-assisted search.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger = newLogger(cfg.Logging)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(statusCmd)
}

// newLogger builds the slog logger from the logging config.
func newLogger(lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore opens the persisted state. Failure degrades to a nil store,
// which every consumer tolerates: the app still works, just without
// cache, history or preferences.
func openStore() *store.Store {
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		logger.Warn("state store unavailable, continuing without persistence", "path", cfg.Storage.Path, "error", err)
		return nil
	}
	return st
}

// ratesService assembles the rate aggregator from config.
func ratesService(st *store.Store) *rates.Service {
	return rates.NewServiceWith(st, logger,
		rates.Options{FreshFor: cfg.Rates.FreshFor, CycleTimeout: cfg.Rates.CycleTimeout},
		rates.NewBluelytics(cfg.Rates.BlueURL),
		rates.NewMindicador(cfg.Rates.ClpURL),
		rates.NewBasket(cfg.Rates.CurrencyAPIBase),
		rates.NewBitcoin(cfg.Rates.CurrencyAPIBase),
	)
}

// searchClient assembles the product search client from config.
func searchClient(st *store.Store) (*search.Client, error) {
	c, err := llm.NewClient(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTimeout(cfg.LLM.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("product search needs an API key (set COINVERSE_LLM_API_KEY): %w", err)
	}
	return search.NewClient(c, st, logger, searchOptions()), nil
}

func searchOptions() search.Options {
	return search.Options{
		MaxQueryLen:  cfg.Search.MaxQueryLen,
		CacheTTL:     cfg.Search.CacheTTL,
		CacheSize:    cfg.Search.CacheSize,
		MaxHistory:   cfg.Search.MaxHistory,
		MaxFavorites: cfg.Search.MaxFavorites,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
	}
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coinverse %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Rates Command ---

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show current exchange rates (1 USD in each currency)",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()
		svc := ratesService(st)

		force, _ := cmd.Flags().GetBool("refresh")
		var snap currency.Snapshot
		var err error
		if force {
			snap, err = svc.ForceRefresh(cmd.Context())
		} else {
			snap, err = svc.Rates(cmd.Context())
		}
		if errors.Is(err, rates.ErrRefreshFailed) {
			fmt.Println("⚠️  All rate sources unavailable — showing fallback rates.")
		} else if err != nil {
			return err
		}
		printSnapshot(snap)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			return watchRates(cmd, svc)
		}
		return nil
	},
}

// watchRates keeps refreshing on the configured interval and reprints
// every published snapshot until interrupted.
func watchRates(cmd *cobra.Command, svc *rates.Service) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, unsubscribe := svc.Feed().Subscribe()
	defer unsubscribe()
	// Drain the replayed current value; it was already printed.
	select {
	case <-ch:
	default:
	}

	fmt.Printf("\nWatching (refresh every %s, Ctrl-C to stop)…\n", cfg.Rates.AutoRefresh)
	go svc.AutoRefresh(ctx, cfg.Rates.AutoRefresh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-ch:
			fmt.Println()
			printSnapshot(snap)
		}
	}
}

func printSnapshot(snap currency.Snapshot) {
	fmt.Printf("Exchange rates — %s\n\n", snap.Timestamp.Local().Format("2006-01-02 15:04"))
	for _, code := range currency.All {
		info := currency.Currencies[code]
		fmt.Printf("  %-4s %-16s %s\n",
			strings.ToUpper(string(code)), info.Name,
			convert.FormatAmount(snap.Rate(code), code))
	}
}

func init() {
	ratesCmd.Flags().Bool("refresh", false, "force a refresh even when the cache is fresh")
	ratesCmd.Flags().Bool("watch", false, "keep refreshing on the configured interval")
}

// --- Convert Command ---

var convertCmd = &cobra.Command{
	Use:   "convert [amount] [from] [to]",
	Short: "Convert an amount between currencies",
	Long: `Convert an amount between supported currencies using current rates.

Amounts accept the es-AR format: "1.234,56" and currency symbols are
tolerated ("US$ 1.5", "CLP 10.000").`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from := currency.Code(strings.ToLower(args[1]))
		to := currency.Code(strings.ToLower(args[2]))
		if !currency.Valid(from) {
			return fmt.Errorf("unknown currency %q", args[1])
		}
		if !currency.Valid(to) {
			return fmt.Errorf("unknown currency %q", args[2])
		}
		amount := convert.ParseAmount(args[0])

		st := openStore()
		defer st.Close()
		snap, err := ratesService(st).Rates(cmd.Context())
		if errors.Is(err, rates.ErrRefreshFailed) {
			fmt.Println("⚠️  Using fallback rates — no source reachable.")
		} else if err != nil {
			return err
		}

		out := convert.Convert(amount, from, to, snap)
		fmt.Printf("%s = %s\n",
			convert.FormatAmount(amount, from),
			convert.FormatAmount(out, to))
		return nil
	},
}

// --- Search Command ---

var searchCmd = &cobra.Command{
	Use:   "search [product...]",
	Short: "Compare a product's price across markets",
	Long: `Ask the AI for current prices of a product in Chile, Argentina, USA,
Brazil, UK and the EU, and show them converted to your selected
currencies.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		st := openStore()
		defer st.Close()
		sc, err := searchClient(st)
		if err != nil {
			return err
		}

		result, err := sc.Search(cmd.Context(), query)
		if err != nil {
			return err
		}
		printResult(st, result)
		return nil
	},
}

// printResult renders a search result with conversions into the user's
// selected currency triple.
func printResult(st *store.Store, result search.Result) {
	fmt.Printf("%s\n", result.Product)
	if result.Degraded() {
		fmt.Printf("  ⚠️  %s\n", result.Source)
		return
	}
	fmt.Printf("  confidence: %.0f%%  source: %s\n\n", result.Confidence, result.Source)

	snap := ratesService(st).Current()
	selected := st.SelectedCurrencies()

	for _, code := range currency.All {
		price, ok := result.Prices[code]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-14s %s", currency.Currencies[code].Country, convert.FormatAmount(price, code))
		var conv []string
		for _, sel := range selected {
			if sel == code {
				continue
			}
			conv = append(conv, convert.FormatAmount(convert.Convert(price, code, sel, snap), sel))
		}
		if len(conv) > 0 {
			line += "  (≈ " + strings.Join(conv, ", ") + ")"
		}
		fmt.Println(line)
		if url, ok := result.URLs[code]; ok {
			fmt.Printf("  %-14s %s\n", "", url)
		}
	}
}

// --- History Command ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past product searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()
		history := search.NewHistoryWith(st, cfg.Search.MaxHistory, cfg.Search.MaxFavorites)

		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			if err := history.Clear(); err != nil {
				return err
			}
			fmt.Println("History and favorites cleared.")
			return nil
		}

		entries := history.Entries()
		if len(entries) == 0 {
			fmt.Println("No searches yet.")
			return nil
		}
		for _, e := range entries {
			star := " "
			if e.Favorite {
				star = "★"
			}
			fmt.Printf("%s %s  %-30s %s  (%s)\n",
				star, e.Timestamp.Local().Format("2006-01-02 15:04"),
				e.Query, e.Result.Product, e.ID)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("clear", false, "wipe search history and favorites")
}

// --- Favorites Command ---

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List or edit favorite searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()
		history := search.NewHistoryWith(st, cfg.Search.MaxHistory, cfg.Search.MaxFavorites)

		if id, _ := cmd.Flags().GetString("add"); id != "" {
			if err := history.AddFavorite(id); err != nil {
				return err
			}
			fmt.Println("Added to favorites.")
			return nil
		}
		if id, _ := cmd.Flags().GetString("remove"); id != "" {
			if err := history.RemoveFavorite(id); err != nil {
				return err
			}
			fmt.Println("Removed from favorites.")
			return nil
		}

		favorites := history.Favorites()
		if len(favorites) == 0 {
			fmt.Println("No favorites yet.")
			return nil
		}
		for _, f := range favorites {
			fmt.Printf("★ %-30s %s  (%s)\n", f.DisplayName, f.Query, f.ID)
		}
		return nil
	},
}

func init() {
	favoritesCmd.Flags().String("add", "", "history entry id to pin")
	favoritesCmd.Flags().String("remove", "", "favorite id to unpin")
}

// --- Prefs Command ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change persisted preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		if theme, _ := cmd.Flags().GetString("theme"); theme != "" {
			if theme != "light" && theme != "dark" {
				return fmt.Errorf("theme must be light or dark, got %q", theme)
			}
			st.SetTheme(theme)
		}
		if lang, _ := cmd.Flags().GetString("language"); lang != "" {
			if lang != "es" && lang != "en" {
				return fmt.Errorf("language must be es or en, got %q", lang)
			}
			st.SetLanguage(lang)
		}
		if triple, _ := cmd.Flags().GetString("currencies"); triple != "" {
			parts := strings.Split(strings.ToLower(triple), ",")
			if len(parts) != 3 {
				return fmt.Errorf("need exactly three comma-separated currencies, got %q", triple)
			}
			codes := make([]currency.Code, 0, 3)
			for _, p := range parts {
				code := currency.Code(strings.TrimSpace(p))
				if !currency.Valid(code) {
					return fmt.Errorf("unknown currency %q", p)
				}
				codes = append(codes, code)
			}
			st.SetSelectedCurrencies(codes)
		}

		selected := make([]string, 0, 3)
		for _, c := range st.SelectedCurrencies() {
			selected = append(selected, strings.ToUpper(string(c)))
		}
		fmt.Printf("theme:      %s\n", st.Theme("light"))
		fmt.Printf("language:   %s\n", st.Language("es"))
		fmt.Printf("currencies: %s\n", strings.Join(selected, ", "))
		return nil
	},
}

func init() {
	prefsCmd.Flags().String("theme", "", "set the theme (light, dark)")
	prefsCmd.Flags().String("language", "", "set the language (es, en)")
	prefsCmd.Flags().String("currencies", "", "set the converter triple, e.g. clp,usd,ars")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		defer st.Close()

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  coinverse — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:  %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Model:         %s @ %s\n", cfg.LLM.Model, cfg.LLM.BaseURL)
		fmt.Printf("    State:         %s\n", cfg.Storage.Path)
		fmt.Printf("    Rate sources:  bluelytics, mindicador, currency-basket, bitcoin\n")
		fmt.Println()

		fmt.Println("  Rate cache:")
		cache := rates.NewCache(st)
		if snap := cache.Read(true); snap != nil {
			age := time.Since(snap.Timestamp).Round(time.Second)
			state := "fresh"
			if age > cfg.Rates.FreshFor {
				state = "stale"
			}
			fmt.Printf("    Last update:   %s (%s, %s)\n",
				snap.Timestamp.Local().Format("2006-01-02 15:04:05"), age, state)
		} else {
			fmt.Println("    Last update:   never")
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

		if cfg.LLM.APIKey != "" {
			client, err := llm.NewClient(cfg.LLM.APIKey, llm.WithBaseURL(cfg.LLM.BaseURL))
			if err == nil {
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				defer cancel()
				if err := client.Ping(ctx); err != nil {
					fmt.Printf("    %-25s ❌ %v\n", "Endpoint:", err)
				} else {
					fmt.Printf("    %-25s ✅ reachable\n", "Endpoint:")
				}
			}
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
