package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pjanowski/regiolens/internal/analysis"
	"github.com/pjanowski/regiolens/internal/bdl"
	"github.com/pjanowski/regiolens/internal/cache"
	"github.com/pjanowski/regiolens/internal/config"
	"github.com/pjanowski/regiolens/internal/dashboard"
	"github.com/pjanowski/regiolens/internal/pipeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "regiolens",
	Short:   "Regional labour-market statistics from GUS BDL",
	Long:    "Regiolens fetches unemployment and wage series from the BDL API, caches them, and derives rankings, correlations and charts per voivodeship.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(searchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("regiolens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/regiolens/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point at a different BDL gateway or adjust cache lifetime.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dataset cache status without touching the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.GetCacheDir()
		fmt.Printf("Cache directory: %s\n", dir)
		fmt.Printf("Dataset key:     %s\n", pipeline.CacheKey)

		meta, err := cache.ReadMeta(dir, pipeline.CacheKey)
		if err != nil {
			fmt.Println("No cached dataset. Run 'regiolens refresh' to fetch one.")
			return nil
		}

		fresh := cache.IsFresh(dir, pipeline.CacheKey, cfg.Cache.MaxAgeHours)
		fmt.Printf("Source:          %s\n", meta.Source)
		fmt.Printf("Created:         %s\n", meta.CreatedAtISO)
		if created, err := meta.CreatedAt(); err == nil {
			fmt.Printf("Age:             %s\n", time.Since(created).Round(time.Minute))
		}
		fmt.Printf("Fresh (<=%dh):   %v\n", cfg.Cache.MaxAgeHours, fresh)

		table, err := cache.Load(dir, pipeline.CacheKey)
		if err != nil {
			fmt.Printf("Data artifact:   unreadable (%v)\n", err)
			return nil
		}
		fmt.Printf("Rows:            %d\n", len(table.Rows))
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the dataset from the BDL API, ignoring cache freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := pipeline.Refresh(context.Background(), pipelineOptions())
		if err != nil {
			return err
		}

		years := make(map[int]struct{})
		regions := make(map[string]struct{})
		for _, r := range table.Rows {
			years[r.Year] = struct{}{}
			regions[r.UnitID] = struct{}{}
		}
		fmt.Printf("Refreshed dataset: %d rows, %d years, %d regions\n",
			len(table.Rows), len(years), len(regions))
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the labour-market summary and rankings, rendering charts",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := dashboard.Get(context.Background(), dashboard.Options{
			CacheDir:    cfg.GetCacheDir(),
			ChartsDir:   cfg.GetChartsDir(),
			MaxAgeHours: cfg.Cache.MaxAgeHours,
			ClientID:    cfg.ClientID(),
			BaseURL:     cfg.BDL.BaseURL,
			StartYear:   cfg.Dataset.StartYear,
		})
		if err != nil {
			return err
		}

		printSummary(data.Summary)

		fmt.Println("\nRanking (najwyższe bezrobocie najpierw):")
		printRanking(data.Tables.Ranking)
		fmt.Println("\nTop 5:")
		printRanking(data.Tables.Top5)
		fmt.Println("\nBottom 5:")
		printRanking(data.Tables.Bottom5)

		fmt.Println("\nCharts:")
		fmt.Printf("  %s\n", filepath.Join(cfg.GetChartsDir(), filepath.Base(data.ChartPaths.Trend)))
		fmt.Printf("  %s\n", filepath.Join(cfg.GetChartsDir(), filepath.Base(data.ChartPaths.BarUnemp)))
		fmt.Printf("  %s\n", filepath.Join(cfg.GetChartsDir(), filepath.Base(data.ChartPaths.Scatter)))
		return nil
	},
}

// --- search command ---

var (
	searchPageSize   int
	searchPreferUnit string
)

var searchCmd = &cobra.Command{
	Use:   "search [phrase]",
	Short: "Search BDL variables and show how the selection heuristic ranks them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := bdl.NewClient(cfg.BDL.BaseURL, cfg.ClientID(), 0)
		ctx := context.Background()

		vars, err := client.SearchVariables(ctx, args[0], searchPageSize)
		if err != nil {
			return err
		}
		if len(vars) == 0 {
			fmt.Println("No variables found.")
			return nil
		}

		best, err := client.PickBestVariable(ctx, args[0], searchPreferUnit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLEVEL\tUNIT\tNAME")
		for _, v := range vars {
			level := "-"
			if v.Level != nil {
				level = strconv.Itoa(*v.Level)
			}
			marker := ""
			if v.ID == best.ID {
				marker = " *"
			}
			fmt.Fprintf(w, "%d%s\t%s\t%s\t%s\n", v.ID, marker, level, v.MeasureUnit, v.Name)
		}
		w.Flush()
		fmt.Println("\n* best match")
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", 50, "Number of candidates to fetch")
	searchCmd.Flags().StringVar(&searchPreferUnit, "unit", "", "Preferred measure-unit substring for ranking")
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		CacheDir:    cfg.GetCacheDir(),
		MaxAgeHours: cfg.Cache.MaxAgeHours,
		ClientID:    cfg.ClientID(),
		BaseURL:     cfg.BDL.BaseURL,
		StartYear:   cfg.Dataset.StartYear,
	}
}

func printSummary(s analysis.Summary) {
	fmt.Println("Podsumowanie:")
	fmt.Printf("  Najnowszy rok (bezrobocie):    %s\n", formatYear(s.LatestUnempYear))
	fmt.Printf("  Najnowszy rok (płace):         %s\n", formatYear(s.LatestWageYear))
	fmt.Printf("  Najnowszy rok (oba):           %s\n", formatYear(s.LatestBothYear))
	fmt.Printf("  Średnie bezrobocie:            %s\n", formatFloat(s.AvgUnemploymentLatest, "%.2f%%"))
	fmt.Printf("  Średnie wynagrodzenie:         %s\n", formatFloat(s.AvgWageLatest, "%.2f zł"))
	fmt.Printf("  Korelacja bezrobocie/płace:    %s\n", formatFloat(s.CorrUnempVsWageLatest, "%.3f"))
}

func printRanking(rows []analysis.RankingRow) {
	if len(rows) == 0 {
		fmt.Println("  (brak danych)")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  %s\t%s\t%s\n", analysis.RankingColumns[0], analysis.RankingColumns[1], analysis.RankingColumns[2])
	for _, r := range rows {
		wage := "-"
		if r.AvgWage != nil {
			wage = fmt.Sprintf("%.2f", *r.AvgWage)
		}
		fmt.Fprintf(w, "  %s\t%.2f\t%s\n", r.Name, r.Unemployment, wage)
	}
	w.Flush()
}

func formatYear(y *int) string {
	if y == nil {
		return "-"
	}
	return strconv.Itoa(*y)
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
