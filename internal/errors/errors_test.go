package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestIsComparesByCode(t *testing.T) {
	sentinel := New(CodeTimeout, "")
	wrapped := fmt.Errorf("outer: %w", Wrap(CodeTimeout, stdErrors.New("deadline"), "call timed out"))

	if !stdErrors.Is(wrapped, sentinel) {
		t.Fatalf("expected wrapped error to match sentinel by code")
	}
	if stdErrors.Is(wrapped, New(CodeNotFound, "")) {
		t.Fatalf("different codes must not match")
	}
	if CodeOf(wrapped) != CodeTimeout {
		t.Fatalf("unexpected code: %s", CodeOf(wrapped))
	}
}

func TestAttributesDefaultsAndOverrides(t *testing.T) {
	err := New(CodeQueueFailure, "")
	if err.Message() != "queue failure" {
		t.Fatalf("expected default message, got %q", err.Message())
	}
	if !err.Retryable() || !err.ShouldAlert() || err.Severity() != SeverityCritical {
		t.Fatalf("unexpected default attributes: retryable=%v alert=%v severity=%s", err.Retryable(), err.ShouldAlert(), err.Severity())
	}

	overridden := New(CodeQueueFailure, "x", WithRetryable(false), WithAlert(false), WithSeverity(SeverityInfo))
	if overridden.Retryable() || overridden.ShouldAlert() || overridden.Severity() != SeverityInfo {
		t.Fatalf("options did not override attributes")
	}

	unknown := New(Code("NOT_REGISTERED"), "")
	if unknown.Message() != "unknown error" {
		t.Fatalf("unregistered code should fall back to UNKNOWN, got %q", unknown.Message())
	}
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(CodeInvalidArgument, "bad", WithMetadata("field", "goal"))
	md := err.Metadata()
	md["field"] = "mutated"
	if v, _ := err.MetadataValue("field"); v != "goal" {
		t.Fatalf("metadata leaked mutation: %q", v)
	}
	if RetryableError(stdErrors.New("plain")) {
		t.Fatalf("plain errors are never retryable")
	}
}

func TestAttributesResolvedAfterRegister(t *testing.T) {
	early := New(Code("LATE_REGISTERED"), "")
	Register(Code("LATE_REGISTERED"), Attributes{Message: "registered late", Severity: SeverityWarning, Retryable: true})

	if early.Message() != "registered late" || !early.Retryable() {
		t.Fatalf("sentinel created before Register should see its attributes: %q %v", early.Message(), early.Retryable())
	}
	if early.Severity() != SeverityWarning {
		t.Fatalf("unexpected severity %s", early.Severity())
	}
}
