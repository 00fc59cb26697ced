// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := WithComponent("admission")
	l = l.Output(&buf)
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["component"] != "admission" {
		t.Errorf("expected component=admission, got %v", entry["component"])
	}
	if entry["service"] == "" {
		t.Error("expected service field to be set")
	}
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithAttemptID(ctx, "att-7")
	ctx = ContextWithRoomID(ctx, "room-42")

	var buf bytes.Buffer
	l := WithContext(ctx, Base().Output(&buf))
	l.Info().Msg("correlated")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["attempt_id"] != "att-7" {
		t.Errorf("attempt_id = %v", entry["attempt_id"])
	}
	if entry["room_id"] != "room-42" {
		t.Errorf("room_id = %v", entry["room_id"])
	}
}

func TestWithContextNilContext(t *testing.T) {
	l := Base()
	got := WithContext(nil, l) //nolint:staticcheck // nil context is the case under test
	if got.GetLevel() != l.GetLevel() {
		t.Error("nil context must return the logger unchanged")
	}
}
