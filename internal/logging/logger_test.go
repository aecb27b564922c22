package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLogger returns a debug-level slog text logger writing to the buffer.
func newTestLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestLogError_UsesSeverity(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  string
		wantSev   string
	}{
		{"not found is info", common.NotFound("accounts", "email"), "INFO", "not_found", "info"},
		{"duplicate is info", common.DuplicateKey("accounts", "username"), "INFO", "duplicate_key", "info"},
		{"permission is warn", common.ErrorPermission, "WARN", "permission_denied", "warn"},
		{"external is error", common.External("breach corpus", errors.New("dial")), "ERROR", "external_failure", "error"},
		{"integrity is critical", common.DataIntegrity("accounts", "email", 2), "ERROR", "data_integrity_violation", "critical"},
		{"decryption is critical", common.Decryption("email", errors.New("tag")), "ERROR", "decryption_failure", "critical"},
		{"wrapped keeps severity", fmt.Errorf("signin: %w", common.DataIntegrity("accounts", "username", 3)), "ERROR", "data_integrity_violation", "critical"},
		{"foreign error", errors.New("plain"), "ERROR", "internal", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newTestLogger(t)

			LogError(context.Background(), log, "lookup", tt.err, "collection", "accounts")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 1)
			assert.Contains(t, lines[0], "level="+tt.wantLevel)
			assert.Contains(t, lines[0], "code="+tt.wantCode)
			assert.Contains(t, lines[0], "severity="+tt.wantSev)
			assert.Contains(t, lines[0], "collection=accounts")
		})
	}
}
