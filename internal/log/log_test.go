package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"log/slog"
)

func TestRedactionExactFields(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"secret", "token", "password", "passphrase", "key", "salt", "payload", "doc", "envelope"} {
		out := logSingleField(t, field, "super-sensitive")
		require.Equalf(t, "[REDACTED]", out[field], "field %q leaked", field)
	}
}

func TestRedactionSuffixedFields(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"api_key", "session_token", "client_secret", "store_passphrase"} {
		out := logSingleField(t, field, "super-sensitive")
		require.Equalf(t, "[REDACTED]", out[field], "field %q leaked", field)
	}
}

func TestRedactionIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "Passphrase", "hunter2")
	require.Equal(t, "[REDACTED]", out["Passphrase"])
}

func TestNonSensitiveFieldsPassThrough(t *testing.T) {
	t.Parallel()
	out := logSingleField(t, "table", "job_applications")
	require.Equal(t, "job_applications", out["table"])
}

func TestRedactionInsideGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewRedactingHandler(base))
	logger.Info("test", slog.Group("crypto", slog.String("passphrase", "hunter2"), slog.String("alg", "AES-GCM")))

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out))
	group, ok := out["crypto"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "[REDACTED]", group["passphrase"])
	require.Equal(t, "AES-GCM", group["alg"])
}

func TestRedactionOnWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewRedactingHandler(base)).With("passphrase", "hunter2")
	logger.Info("test")

	out := map[string]any{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out))
	require.Equal(t, "[REDACTED]", out["passphrase"])
}

func TestNewWritesRedactedJSONToFile(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "jobops.log")
	logger, closeFn, err := New(Options{Level: "debug", File: logPath, MaxSizeMB: 1, MaxFiles: 1})
	require.NoError(t, err)

	logger.Info("unlocking store", "passphrase", "hunter2", "path", "/tmp/store.db")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "[REDACTED]")
	require.NotContains(t, string(data), "hunter2")
	require.Contains(t, string(data), "/tmp/store.db")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelInfo, parseLevel("info"))
	require.Equal(t, slog.LevelWarn, parseLevel("warn"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
	require.Equal(t, slog.LevelInfo, parseLevel("shout"))
}

func TestLogRotationCreatesNewFileAfterLimit(t *testing.T) {
	logDir := t.TempDir()
	logPath := filepath.Join(logDir, "jobops.log")

	writer, err := newRotatingWriter(logPath, 10, 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	chunk := bytes.Repeat([]byte("a"), 1024*1024)
	for i := 0; i < 11; i++ {
		_, err = writer.Write(chunk)
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(logDir, "jobops*"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 2)
}

func TestLogRotationRetainsBoundedBackups(t *testing.T) {
	logDir := t.TempDir()
	logPath := filepath.Join(logDir, "jobops.log")

	writer, err := newRotatingWriter(logPath, 10, 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	chunk := bytes.Repeat([]byte("b"), 1024*1024)
	for i := 0; i < 80; i++ {
		_, err := writer.Write(chunk)
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(logDir, "jobops*"))
	require.NoError(t, err)

	backupCount := 0
	for _, f := range files {
		if f == logPath {
			continue
		}
		backupCount++
	}
	require.LessOrEqual(t, backupCount, 5)
}

func logSingleField(t *testing.T, key, value string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewRedactingHandler(base))
	logger.Info("test", key, value)

	line := bytes.TrimSpace(buf.Bytes())
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(line, &out))
	return out
}
