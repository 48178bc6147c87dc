package cmd

import (
	"fmt"
	"os"

	"github.com/WilsonNous/NousCard/pkg/errors"
	"github.com/WilsonNous/NousCard/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints a user-facing message for the error and returns the
// process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if engineErr, ok := errors.AsEngineError(err); ok {
		return h.handleEngineError(engineErr)
	}

	return h.handleGenericError(err)
}

// handleEngineError handles EngineError with detailed context
func (h *CLIErrorHandler) handleEngineError(err *errors.EngineError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := h.getCategoryHelp(err.Category); help != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-EngineError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "Run with --verbose for more details\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryContext:
		return `Context error help:
• Pass --tenant-id with the tenant to reconcile
• Check that the tenant exists and your credentials grant access to it`

	case errors.CategoryContention:
		return `Contention error help:
• Another reconciliation run is in progress for this tenant
• Wait for it to finish and try again; runs are serialized per tenant
• If a crashed run left the lock behind, it expires on its own TTL`

	case errors.CategoryValidation:
		return `Validation error help:
• Check the flag values and NOUSCARD_* environment variables
• Epsilon and tolerance-days must not be negative
• Run with --help to see the accepted values`

	case errors.CategoryPersistence:
		return `Persistence error help:
• The run was rolled back; no partial matches were written
• Check the database DSN and that the database is reachable
• Re-running is safe: committed matches are never duplicated`

	default:
		return ""
	}
}
