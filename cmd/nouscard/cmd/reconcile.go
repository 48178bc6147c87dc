package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/WilsonNous/NousCard/cmd/nouscard/config"
	"github.com/WilsonNous/NousCard/internal/audit"
	"github.com/WilsonNous/NousCard/internal/models"
	"github.com/WilsonNous/NousCard/internal/reconciler"
	"github.com/WilsonNous/NousCard/internal/reporter"
	"github.com/WilsonNous/NousCard/pkg/errors"
	"github.com/WilsonNous/NousCard/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	tenantID      string
	userID        string
	outputFormat  string
	outputFile    string
	epsilon       float64
	toleranceDays int
	budget        time.Duration
	dsn           string
	redisAddr     string
	lockTTL       time.Duration
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the reconciliation for one tenant",
	Long: `Reconcile loads the tenant's unsettled sales and bank receipts, applies
the matching strategies in order (exact, tolerant, partial, consolidation)
and commits every resulting settlement in one transaction.

A second run for the same tenant fails fast while one is in progress. A
run that exceeds its time budget commits what it matched and reports a
partial result; the next run continues from the remaining backlog.

Examples:
  # Reconcile one tenant against the configured database
  nouscard reconcile --tenant-id acme

  # Custom tolerances and budget
  nouscard reconcile --tenant-id acme --epsilon 0.05 --tolerance-days 3 --budget 60s

  # JSON report to a file, distributed lock via Redis
  nouscard reconcile --tenant-id acme --output-format json --output-file run.json \
    --redis-addr localhost:6379`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVarP(&tenantID, "tenant-id", "t", "", "tenant to reconcile (required)")

	// Run identity flags
	reconcileCmd.Flags().StringVarP(&userID, "user-id", "u", "", "user recorded on the audit fact")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Matching configuration flags
	reconcileCmd.Flags().Float64VarP(&epsilon, "epsilon", "e", 0.02, "amount tolerance in currency units")
	reconcileCmd.Flags().IntVarP(&toleranceDays, "tolerance-days", "d", 2, "settlement date window in days")
	reconcileCmd.Flags().DurationVar(&budget, "budget", reconciler.DefaultBudget, "wall-clock budget per run")

	// Infrastructure flags
	reconcileCmd.Flags().StringVar(&dsn, "dsn", "", "MySQL DSN (or NOUSCARD_DSN)")
	reconcileCmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address for the tenant lock (in-process lock when empty)")
	reconcileCmd.Flags().DurationVar(&lockTTL, "lock-ttl", 0, "tenant lock TTL (default: budget plus margin)")

	reconcileCmd.MarkFlagRequired("tenant-id")

	// Bind flags to viper
	viper.BindPFlag("tenant-id", reconcileCmd.Flags().Lookup("tenant-id"))
	viper.BindPFlag("user-id", reconcileCmd.Flags().Lookup("user-id"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("epsilon", reconcileCmd.Flags().Lookup("epsilon"))
	viper.BindPFlag("tolerance-days", reconcileCmd.Flags().Lookup("tolerance-days"))
	viper.BindPFlag("budget", reconcileCmd.Flags().Lookup("budget"))
	viper.BindPFlag("dsn", reconcileCmd.Flags().Lookup("dsn"))
	viper.BindPFlag("redis-addr", reconcileCmd.Flags().Lookup("redis-addr"))
	viper.BindPFlag("lock-ttl", reconcileCmd.Flags().Lookup("lock-ttl"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and env)
	tenantID = viper.GetString("tenant-id")
	userID = viper.GetString("user-id")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	epsilon = viper.GetFloat64("epsilon")
	toleranceDays = viper.GetInt("tolerance-days")
	budget = viper.GetDuration("budget")
	dsn = viper.GetString("dsn")
	redisAddr = viper.GetString("redis-addr")
	lockTTL = viper.GetDuration("lock-ttl")

	if tenantID == "" {
		return errors.NoTenantContext(tenantID)
	}
	if dsn == "" {
		return errors.ConfigurationError("dsn", dsn, fmt.Errorf("database DSN is required")).
			WithSuggestion("Pass --dsn or set NOUSCARD_DSN")
	}
	if !reporter.OutputFormat(outputFormat).IsValid() {
		return errors.ConfigurationError("output-format", outputFormat, nil).
			WithSuggestion("Use 'console' or 'json'")
	}
	if epsilon < 0 {
		return errors.ConfigurationError("epsilon", epsilon, nil)
	}
	if toleranceDays < 0 {
		return errors.ConfigurationError("tolerance-days", toleranceDays, nil)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log, err := config.CreateLogger(verbose)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)

	repo, err := config.BuildRepository(dsn)
	if err != nil {
		return err
	}

	locker, err := config.BuildLocker(redisAddr, config.LockTTL(lockTTL, budget))
	if err != nil {
		return err
	}

	orchestrator, err := reconciler.NewOrchestrator(repo, locker, audit.NewLogSink(log), &reconciler.Config{
		Matcher: config.CreateMatcherConfig(epsilon, toleranceDays),
		Budget:  budget,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	stats, err := orchestrator.Run(context.Background(), tenantID, userID)
	if err != nil {
		return err
	}

	return writeReport(stats, outputFormat, outputFile)
}

func writeReport(stats *models.RunStatistics, format, path string) error {
	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
		Format:       reporter.OutputFormat(format),
		IncludeNotes: true,
	})
	if err != nil {
		return errors.ConfigurationError("output-format", format, err)
	}

	var out io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
				fmt.Sprintf("failed to create output file %s", path))
		}
		defer file.Close()
		out = file
	}

	return generator.GenerateReport(stats, out)
}
