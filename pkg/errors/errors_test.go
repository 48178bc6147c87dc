package errors

import (
	"fmt"
	"testing"
)

func TestNoTenantContext(t *testing.T) {
	err := NoTenantContext("")

	if err.Category != CategoryContext {
		t.Errorf("Expected context category, got %s", err.Category)
	}
	if err.Code != CodeNoTenantContext {
		t.Errorf("Expected no_tenant_context code, got %s", err.Code)
	}
	if err.GetExitCode() != 2 {
		t.Errorf("Expected exit code 2, got %d", err.GetExitCode())
	}
}

func TestAlreadyRunning(t *testing.T) {
	err := AlreadyRunning("tenant-1")

	if err.Category != CategoryContention {
		t.Errorf("Expected contention category, got %s", err.Category)
	}
	if err.Context["tenant_id"] != "tenant-1" {
		t.Errorf("Expected tenant id in context, got %v", err.Context)
	}
	if err.Suggestion == "" {
		t.Error("Expected a retry suggestion")
	}
}

func TestPersistenceFailureWrapsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := PersistenceFailure("commit run", cause)

	if err.Category != CategoryPersistence {
		t.Errorf("Expected persistence category, got %s", err.Category)
	}
	if err.Unwrap() != cause {
		t.Errorf("Expected cause to unwrap, got %v", err.Unwrap())
	}
	if err.GetExitCode() != 4 {
		t.Errorf("Expected exit code 4, got %d", err.GetExitCode())
	}
}

func TestHasCode(t *testing.T) {
	err := AlreadyRunning("tenant-1")

	if !HasCode(err, CodeAlreadyRunning) {
		t.Error("Expected HasCode to match the error's code")
	}
	if HasCode(err, CodeNoTenantContext) {
		t.Error("Expected HasCode to reject a different code")
	}
	if HasCode(fmt.Errorf("plain error"), CodeAlreadyRunning) {
		t.Error("Expected HasCode to reject plain errors")
	}
	if HasCode(nil, CodeAlreadyRunning) {
		t.Error("Expected HasCode to reject nil")
	}
}

func TestAsEngineError(t *testing.T) {
	engineErr, ok := AsEngineError(NoTenantContext(""))
	if !ok || engineErr == nil {
		t.Fatal("Expected AsEngineError to extract the engine error")
	}

	if _, ok := AsEngineError(fmt.Errorf("plain error")); ok {
		t.Error("Expected AsEngineError to reject plain errors")
	}
}

func TestWithContextAndSuggestion(t *testing.T) {
	err := New(CategoryValidation, CodeInvalidData, "bad row").
		WithContext("sale_id", int64(42)).
		WithSuggestion("re-import the sale")

	if err.Context["sale_id"] != int64(42) {
		t.Errorf("Expected context to carry sale_id, got %v", err.Context)
	}
	if err.Suggestion != "re-import the sale" {
		t.Errorf("Unexpected suggestion: %s", err.Suggestion)
	}
	if err.Error() == "" {
		t.Error("Expected a non-empty message")
	}
}
