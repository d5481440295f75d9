package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platinummonkey/warden/pkg/contextkeys"
)

type logEntry struct {
	Level          string `json:"level"`
	Msg            string `json:"msg"`
	Error          string `json:"error"`
	RequestID      string `json:"request_id"`
	UserID         string `json:"user_id"`
	OrganizationID int64  `json:"organization_id"`
	RoleID         int64  `json:"role_id"`
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) logEntry {
	t.Helper()
	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Infof("role %s updated", "agent")
		entry := decodeEntry(t, &buf)
		if entry.Level != "INFO" {
			t.Errorf("Expected level INFO, got %s", entry.Level)
		}
		if entry.Msg != "role agent updated" {
			t.Errorf("Expected formatted message, got %s", entry.Msg)
		}
	})

	t.Run("error logged with error field", func(t *testing.T) {
		buf.Reset()
		logger.WithError(errors.New("boom")).Error("save failed")
		entry := decodeEntry(t, &buf)
		if entry.Level != "ERROR" {
			t.Errorf("Expected level ERROR, got %s", entry.Level)
		}
		if entry.Error != "boom" {
			t.Errorf("Expected error field boom, got %s", entry.Error)
		}
	})
}

func TestLogger_WithErrorNil(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"info":    InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
		"":        InfoLevel,
	}
	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(DebugLevel, &buf))
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	ctx = contextkeys.WithUserID(ctx, "7")
	ctx = contextkeys.WithOrgID(ctx, 42)

	FromContext(ctx).WithField("role_id", int64(3)).Info("hello")

	entry := decodeEntry(t, &buf)
	if entry.RequestID != "req-1" {
		t.Errorf("Expected request_id req-1, got %q", entry.RequestID)
	}
	if entry.UserID != "7" {
		t.Errorf("Expected user_id 7, got %q", entry.UserID)
	}
	if entry.OrganizationID != 42 {
		t.Errorf("Expected organization_id 42, got %d", entry.OrganizationID)
	}
	if entry.RoleID != 3 {
		t.Errorf("Expected role_id 3, got %d", entry.RoleID)
	}
}

func TestGetLogger_Fallback(t *testing.T) {
	if GetLogger(context.Background()) == nil {
		t.Fatal("Expected fallback logger")
	}
}
