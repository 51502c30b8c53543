package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rubenpeq/BITZER-APP/internal/config"
	"github.com/rubenpeq/BITZER-APP/internal/service/importer"
	"github.com/rubenpeq/BITZER-APP/internal/storage/mysql"
	"github.com/rubenpeq/BITZER-APP/internal/xlsx"
)

var (
	baseDir              string
	dsn                  string
	preview              bool
	simulate             bool
	updateOrderNumPieces bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "importer --base-dir <Orders>",
		Short: "Import historical order workbooks into the orders database",
		Long: `Walks an archive of monthly order workbooks (folders like 01-2020 holding
files like 1042_AB1.xlsm) and loads them as orders, operations and tasks.
Re-runs are idempotent for orders and operations; task rows are appended on
every run.`,
		RunE:          runImport,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringVar(&baseDir, "base-dir", "", "archive root directory (required)")
	rootCmd.Flags().StringVar(&dsn, "dsn", "", "database DSN, overrides DATABASE_DSN")
	rootCmd.Flags().BoolVar(&preview, "preview", false, "parse and report only, no database access")
	rootCmd.Flags().BoolVar(&simulate, "simulate", false, "query the database for accurate counts, no writes")
	rootCmd.Flags().BoolVar(&updateOrderNumPieces, "update-order-num-pieces", false,
		"after import, set each order's num_pieces to the sum of its imported good pieces")
	_ = rootCmd.MarkFlagRequired("base-dir")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := config.MustConfig()
	if dsn != "" {
		cfg.DatabaseDSN = dsn
	}

	var store importer.ImportStorage
	if !preview {
		st, err := mysql.New(*cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		err = st.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}
		store = st
	}

	imp := importer.New(log, store, xlsx.NewReader(), importer.Options{
		Preview:              preview,
		Simulate:             simulate,
		UpdateOrderNumPieces: updateOrderNumPieces,
	})

	stats, err := imp.Run(cmd.Context(), baseDir)
	if err != nil {
		return err
	}

	fmt.Printf("DONE. orders created=%d existing=%d, operations created=%d existing=%d, tasks=%d, skipped=%d, failed=%d\n",
		stats.OrdersCreated, stats.OrdersExisting,
		stats.OperationsCreated, stats.OperationsExisting,
		stats.TasksInserted, stats.FilesSkipped, stats.FilesFailed)
	return nil
}
