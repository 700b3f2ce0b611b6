package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCkrError(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(TemplateNotFound, "no template for intent", cause)

	if err.Code != TemplateNotFound {
		t.Errorf("Code = %v, want %v", err.Code, TemplateNotFound)
	}
	msg := err.Error()
	if !strings.Contains(msg, "TEMPLATE_NOT_FOUND") {
		t.Errorf("Error() = %q, want code included", msg)
	}
	if !strings.Contains(msg, "underlying error") {
		t.Errorf("Error() = %q, want cause included", msg)
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(InvalidPoolSize, "worker count must be positive", nil)
	want := "[INVALID_POOL_SIZE] worker count must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("sqlite locked")
	err := New(LedgerUnavailable, "cannot open ledger", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(InvalidQuery, "bad depth", nil).WithDetails(map[string]string{"depth": "L9"})
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestWithDrilldowns(t *testing.T) {
	err := New(TemplateNotFound, "no template", nil).
		WithDrilldowns(Drilldown{Label: "list templates", Query: "templates list"})
	if len(err.Drilldowns) != 1 {
		t.Fatalf("Drilldowns = %d, want 1", len(err.Drilldowns))
	}
	if err.Drilldowns[0].Label != "list templates" {
		t.Errorf("Drilldown label = %q", err.Drilldowns[0].Label)
	}
}
