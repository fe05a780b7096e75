package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/lastseen/internal/config"
	"github.com/jonathan/lastseen/internal/server"
	"github.com/jonathan/lastseen/internal/store/sqlite"
)

// execute runs the root command in-process and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, extractTimezone, extractNow, tokenSubject, runFormat = "", "", "", "scheduler", "json"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// isolateEnv clears the variables the config reads so the developer's
// environment cannot leak into tests.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "RECORD_STORE", "SPREADSHEET_ID", "CREDENTIALS_FILE", "SHEET_NAME",
		"INPUT_COLUMN", "OUTPUT_COLUMN", "START_ROW", "DATABASE_URL", "SQLITE_PATH",
		"PROFILE_URL_TEMPLATE", "USE_BROWSER", "CHROME_PATH", "NAV_TIMEOUT", "SETTLE_DELAY",
		"FETCH_TIMEOUT", "CONCURRENCY", "MAX_SCAN_BYTES", "MAX_MATCHES", "TIMEZONE",
		"TRIGGER_SECRET", "TRIGGER_TOKEN_TTL", "LOG_LEVEL", "LOG_DEVELOPMENT",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_DEFAULT_LIMIT", "RATE_LIMIT_DEFAULT_WINDOW",
		"RATE_LIMIT_CLEANUP_INTERVAL", "RATE_LIMIT_TRIGGER_LIMIT", "RATE_LIMIT_TRIGGER_WINDOW",
		"RATE_LIMIT_TRIGGER_BURST", "RATE_LIMIT_WHITELIST", "RATE_LIMIT_BLACKLIST",
	} {
		t.Setenv(key, "")
	}
}

func TestExtractCommand_Stdin(t *testing.T) {
	page := "Last online 4/7/2024, 13:05:02\nJoined 4/9/2024, 08:00:00\nnot a date 4/9/24"

	out, err := execute(t, page, "extract", "--timezone", "UTC", "--now", "2024-04-12T10:00:00Z")
	require.NoError(t, err)

	assert.Equal(t, "2024-04-07T13:05:02Z\n2024-04-09T08:00:00Z\nLast Seen 3 Days Ago\n", out)
}

func TestExtractCommand_NoDates(t *testing.T) {
	out, err := execute(t, "nothing here", "extract")
	require.NoError(t, err)
	assert.Equal(t, "No valid dates\n", out)
}

func TestExtractCommand_InvalidFlags(t *testing.T) {
	_, err := execute(t, "", "extract", "--timezone", "Mars/Olympus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --timezone")

	_, err = execute(t, "", "extract", "--now", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --now")

	_, err = execute(t, "", "extract", "/nonexistent/page.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}

func TestTokenCommand(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SPREADSHEET_ID", "sheet-123")

	_, err := execute(t, "", "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRIGGER_SECRET is not set")

	t.Setenv("TRIGGER_SECRET", "0123456789abcdef-secret")
	out, err := execute(t, "", "token", "--subject", "cron")
	require.NoError(t, err)

	tokens := server.NewTokenService(&config.TriggerAuthConfig{Secret: "0123456789abcdef-secret", TTL: 24 * time.Hour})
	claims, err := tokens.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "cron", claims.Subject)
}

func TestRunCommand_SQLiteOverHTTP(t *testing.T) {
	isolateEnv(t)

	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p/alice":
			fmt.Fprint(w, "<html><body><p>Last seen 1/2/2000, 10:00:00</p></body></html>")
		case "/p/bob":
			fmt.Fprint(w, "<html><body><p>Never logged in</p></body></html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer pages.Close()

	dbPath := filepath.Join(t.TempDir(), "lastseen.db")
	db, err := sqlite.New(context.Background(), dbPath, 5)
	require.NoError(t, err)
	require.NoError(t, db.SeedIdentifiers(context.Background(), []string{"alice", "bob", "carol"}))
	require.NoError(t, db.Close())

	t.Setenv("RECORD_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("USE_BROWSER", "false")
	t.Setenv("PROFILE_URL_TEMPLATE", pages.URL+"/p/{id}")
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "", "run")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 3`)
	assert.Contains(t, out, `"fetch_errors": 1`)

	db, err = sqlite.New(context.Background(), dbPath, 5)
	require.NoError(t, err)
	defer db.Close()
	results, err := db.ReadResults(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, strings.HasPrefix(results[0], "Last Seen "), results[0])
	assert.Equal(t, "No valid dates", results[1])
	assert.Equal(t, "Error loading", results[2])
}

func TestRunCommand_NavigationTimeoutOverHTTP(t *testing.T) {
	isolateEnv(t)

	release := make(chan struct{})
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer pages.Close()
	defer close(release)

	dbPath := filepath.Join(t.TempDir(), "lastseen.db")
	db, err := sqlite.New(context.Background(), dbPath, 5)
	require.NoError(t, err)
	require.NoError(t, db.SeedIdentifiers(context.Background(), []string{"slow"}))
	require.NoError(t, db.Close())

	t.Setenv("RECORD_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("USE_BROWSER", "false")
	t.Setenv("PROFILE_URL_TEMPLATE", pages.URL+"/p/{id}")
	t.Setenv("NAV_TIMEOUT", "50ms")
	t.Setenv("FETCH_TIMEOUT", "1m")
	t.Setenv("LOG_LEVEL", "error")

	start := time.Now()
	out, err := execute(t, "", "run")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 30*time.Second, "navigation timeout should end the request")
	assert.Contains(t, out, `"fetch_errors": 1`)
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spreadsheet_id")
}

func TestRunCommand_TextFormatReportsFailure(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RECORD_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "missing-dir", "x.db"))

	out, err := execute(t, "", "run", "--format", "text")
	require.Error(t, err)
	assert.Contains(t, out, "RUN FAILED")
}

func TestRunCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "", "run", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --format")
}

func TestReportCommand(t *testing.T) {
	isolateEnv(t)

	dbPath := filepath.Join(t.TempDir(), "roster.db")
	db, err := sqlite.New(context.Background(), dbPath, 5)
	require.NoError(t, err)
	require.NoError(t, db.SeedIdentifiers(context.Background(), []string{"alice", "bob"}))
	require.NoError(t, db.WriteResults(context.Background(), []string{"Last Seen 3 Days Ago", "Error loading"}))
	require.NoError(t, db.Close())

	t.Setenv("RECORD_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "Last Seen 3 Days Ago")
	assert.Contains(t, out, "2 profiles: 1 seen, 0 without dates, 1 failed to load")
}
