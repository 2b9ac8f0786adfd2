package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"syncplay/internal/core/services"
	"syncplay/internal/infrastructure/repositories"
	"syncplay/pkg/backup"
	"syncplay/pkg/config"
	"syncplay/pkg/distributed"
	"syncplay/pkg/logger"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile    string
	hours      float64
	dryRun     bool
	archiveDir string
)

var rootCmd = &cobra.Command{
	Use:   "reaper",
	Short: "Deletes rooms that have been idle for too long.",
	Long: `Scans the configured room store and deletes every room that was created
before the cutoff and has seen no activity since, together with its event
history. Use --dry-run to only list the rooms that would be deleted.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if hours <= 0 {
			return fmt.Errorf("--hours must be > 0")
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if archiveDir != "" {
			cfg.Reaper.ArchiveDir = archiveDir
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		return run(ctx, cfg, time.Duration(hours*float64(time.Hour)), dryRun, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "configs/config.yaml", "path to the configuration file")
	rootCmd.Flags().Float64Var(&hours, "hours", 24, "delete rooms idle for longer than this many hours")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	rootCmd.Flags().StringVar(&archiveDir, "archive-dir", "", "save deleted rooms as JSON into this directory (overrides reaper.archive_dir)")
}

func run(ctx context.Context, cfg *config.Config, maxAge time.Duration, dryRun bool, out io.Writer) error {
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer repoFactory.Close()

	var newLock func() services.RunLock
	if client := repoFactory.RedisClient(); client != nil {
		lockManager := distributed.NewLockManager(client, "syncplay:lock:")
		newLock = func() services.RunLock {
			return lockManager.AcquireLock("reaper", cfg.Reaper.LockTTL)
		}
	}

	reaper := services.NewReaperService(
		repoFactory.CreateRoomRepository(),
		repoFactory.CreateEventLog(),
		nil, nil, newLock,
		services.ReaperConfig{MaxAge: maxAge},
		log,
	)
	if cfg.Reaper.ArchiveDir != "" {
		storage, err := backup.NewFileStorage(cfg.Reaper.ArchiveDir)
		if err != nil {
			return err
		}
		reaper.WithArchiver(backup.NewArchiveService(storage, version))
	}

	report, err := reaper.Run(ctx, maxAge, dryRun)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, report *services.ReapReport) {
	if report.LockNotHeld {
		fmt.Fprintln(out, "another reaper is running, nothing done")
		return
	}

	verb := "deleted"
	if report.DryRun {
		verb = "would delete"
	}
	fmt.Fprintf(out, "cutoff: %s\n", report.Cutoff.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "scanned %d rooms, %s %d\n", report.Scanned, verb, len(report.Deleted))
	if report.Archive != "" {
		fmt.Fprintf(out, "archived to %s\n", report.Archive)
	}
	for _, id := range report.Deleted {
		fmt.Fprintf(out, "  %s\n", id)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
