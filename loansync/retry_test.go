// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryablePGTxError(t *testing.T) {
	cases := []struct {
		code      string
		retryable bool
	}{
		{"40001", true}, // serialization_failure
		{"40P01", true}, // deadlock_detected
		{"55P03", true}, // lock_not_available
		{"23505", false},
		{"42P01", false},
	}
	for _, tc := range cases {
		err := &pgconn.PgError{Code: tc.code}
		if got := isRetryablePGTxError(err); got != tc.retryable {
			t.Errorf("code %s: expected retryable=%v got %v", tc.code, tc.retryable, got)
		}
	}

	if isRetryablePGTxError(errors.New("plain error")) {
		t.Error("plain error should not be retryable")
	}
	wrapped := fmt.Errorf("tx failed: %w", &pgconn.PgError{Code: "40001"})
	if !isRetryablePGTxError(wrapped) {
		t.Error("wrapped pg error should still be detected")
	}
}

func TestSleepWithContext(t *testing.T) {
	if err := sleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("zero duration should return immediately: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context should abort the sleep, got %v", err)
	}
}
