package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "connect: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalNetworkError("auth", baseErr)

		if err.IsRetriable() {
			t.Error("Expected error to not be retriable")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := NewNetworkError("dial", baseErr)
		fatal := NewFatalNetworkError("auth", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for retriable error")
		}

		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "api_key", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [api_key]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}

func TestSettlementError(t *testing.T) {
	t.Run("matches sentinel by kind", func(t *testing.T) {
		err := NewSettlementError(KindAmountMismatch, "expected %s, got %s", "100.00", "99.00")
		if !errors.Is(err, ErrAmountMismatch) {
			t.Error("Expected error to match ErrAmountMismatch")
		}
		if errors.Is(err, ErrCurrencyMismatch) {
			t.Error("Expected error not to match ErrCurrencyMismatch")
		}
	})

	t.Run("message format", func(t *testing.T) {
		err := NewSettlementError(KindValidation, "reference is required")
		expected := "ValidationError: reference is required"
		if err.Error() != expected {
			t.Errorf("Error message = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("wrapped network error survives", func(t *testing.T) {
		netErr := NewNetworkError("fetch_settlement", errors.New("timeout"))
		err := fmt.Errorf("reconcile: %w", WrapSettlementError(KindHubUnreachable, netErr, "settlement %s", "42"))

		kind, ok := KindOf(err)
		if !ok || kind != KindHubUnreachable {
			t.Errorf("KindOf = %q, %v; want %q, true", kind, ok, KindHubUnreachable)
		}
		var ne *NetworkError
		if !errors.As(err, &ne) || ne.Op != "fetch_settlement" {
			t.Error("Expected NetworkError to be reachable through the chain")
		}
		if !IsRetriable(err) {
			t.Error("HubUnreachable should be retriable")
		}
	})

	t.Run("business errors are final", func(t *testing.T) {
		if IsRetriable(NewSettlementError(KindParticipantNotInSettlement, "p9")) {
			t.Error("ParticipantNotInSettlement should not be retriable")
		}
	})

	t.Run("plain error has no kind", func(t *testing.T) {
		if _, ok := KindOf(errors.New("plain")); ok {
			t.Error("KindOf should report false for untyped errors")
		}
	})
}
