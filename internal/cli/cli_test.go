package cli_test

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/healthbridge/internal/cli"
	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/discovery"
	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/sink"
)

// setupHome isolates every test in its own HEALTHBRIDGE_HOME.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	t.Setenv(config.EnvLogLevel, "error")
	t.Cleanup(config.ResetGlobalConfigForTest)
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := cli.NewRootCmd("test")
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd(t *testing.T) {
	setupHome(t)
	root := cli.NewRootCmd("1.2.3")

	assert.Equal(t, "healthbridge", root.Use)
	assert.Equal(t, "1.2.3", root.Version)
	for _, name := range []string{"scan", "export", "records", "seed", "grant", "sink", "changes", "config"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestEndToEndExport(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "seed", "--days", "10", "--samples", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "covering 10 days")

	// Without access, exporting is refused.
	remote := sink.New(sink.Options{Email: "owner@example.com", TokenLifetimeChunks: 8})
	srv := httptest.NewServer(remote.Handler())
	defer srv.Close()

	out, err = execute(t, "scan", srv.URL+sink.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Export session activated")
	assert.Contains(t, out, "owner@example.com")

	_, err = execute(t, "export", "--plain", "--types", "HeartRateRecord")
	require.ErrorIs(t, err, cli.ErrPermissionsNotGranted)

	_, err = execute(t, "grant", "--yes")
	require.NoError(t, err)

	metricsFile := filepath.Join(t.TempDir(), "export.prom")
	out, err = execute(t, "export", "--plain",
		"--types", "HeartRateRecord,StepsRecord,SleepSessionData",
		"--progress-url", srv.URL+sink.ProgressPath,
		"--metrics-file", metricsFile,
		"--batch-size", "5",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "HeartRateRecord")

	counts := remote.ReceivedCounts()
	// Seeded days before Jan 1 fall outside the export range.
	seededThisYear := time.Now().YearDay() > 10
	if seededThisYear {
		assert.Equal(t, 20, counts["HeartRateRecord"])
	}
	assert.LessOrEqual(t, counts["HeartRateRecord"], 20)
	assert.Equal(t, counts["HeartRateRecord"], counts["StepsRecord"])
	assert.NotContains(t, counts, "RestingHeartRateRecord")

	require.Eventually(t, func() bool {
		last, ok := remote.LastProgress()
		return ok && last.Progress == "100" && last.Email == "owner@example.com"
	}, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "healthbridge_export_chunks_total")
	if seededThisYear {
		// 10 chunks against a token rotated after 8.
		assert.Contains(t, string(data), "healthbridge_token_refreshes_total")
	}
}

func TestExport_NoActiveSession(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "export", "--plain")
	require.ErrorIs(t, err, discovery.ErrNoActiveSession)
}

func TestExport_InvalidFlags(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "export", "--plain", "--end-date", "31/03/2026")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--end-date")

	_, err = execute(t, "export", "--plain", "--types", "MoodRecord")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown record type")
}

func TestScan(t *testing.T) {
	setupHome(t)

	t.Run("invalid url", func(t *testing.T) {
		_, err := execute(t, "scan", "not a url")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid input")
	})

	t.Run("needs an argument", func(t *testing.T) {
		_, err := execute(t, "scan")
		require.Error(t, err)
	})

	t.Run("from QR image then clear", func(t *testing.T) {
		remote := sink.New(sink.Options{})
		srv := httptest.NewServer(remote.Handler())
		defer srv.Close()

		image := filepath.Join(t.TempDir(), "code.png")
		require.NoError(t, discovery.WriteQRFile(image, srv.URL+sink.ConfigPath, 256))

		out, err := execute(t, "scan", "--qr-image", image)
		require.NoError(t, err)
		assert.Contains(t, out, "Export session activated")

		out, err = execute(t, "scan", "--clear")
		require.NoError(t, err)
		assert.Contains(t, out, "cleared")
	})
}

func TestRecords(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "seed", "--days", "3", "--samples", "1")
	require.NoError(t, err)

	out, err := execute(t, "records")
	require.NoError(t, err)
	assert.Contains(t, out, "HeartRateRecord")
	assert.Contains(t, out, "denied")

	_, err = execute(t, "records", "HeartRateRecord")
	require.ErrorIs(t, err, cli.ErrPermissionsNotGranted)

	_, err = execute(t, "grant", "HeartRateRecord", "--yes")
	require.NoError(t, err)

	out, err = execute(t, "records", "HeartRateRecord", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "HeartRateRecord records")
	assert.Contains(t, out, "bpm")

	_, err = execute(t, "grant", "HeartRateRecord", "--revoke")
	require.NoError(t, err)
	_, err = execute(t, "records", "HeartRateRecord")
	require.ErrorIs(t, err, cli.ErrPermissionsNotGranted)
}

func TestRecords_LastWeek(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "seed", "--days", "10", "--samples", "1")
	require.NoError(t, err)
	_, err = execute(t, "grant", "--yes")
	require.NoError(t, err)

	out, err := execute(t, "records", "ExerciseSessionRecord", "--last-week")
	require.NoError(t, err)
	assert.Contains(t, out, "ExerciseSessionRecord records")

	_, err = execute(t, "records", "StepsRecord", "--last-week")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--last-week")
}

func TestChanges(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "seed", "--days", "2", "--samples", "1")
	require.NoError(t, err)

	_, err = execute(t, "changes", "--types", "StepsRecord")
	require.ErrorIs(t, err, healthstore.ErrPermissionDenied)

	_, err = execute(t, "grant", "StepsRecord", "--yes")
	require.NoError(t, err)
	out, err := execute(t, "changes", "--types", "StepsRecord")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	_, err = execute(t, "seed", "--days", "2", "--samples", "1", "--reset")
	require.NoError(t, err)

	out, err = execute(t, "changes", "--token", token)
	require.NoError(t, err)
	assert.Contains(t, out, "delete\tStepsRecord")
	assert.Contains(t, out, "upsert\tStepsRecord")
	assert.NotContains(t, out, "HeartRateRecord")
	assert.Contains(t, out, "next token")

	_, err = execute(t, "changes", "--token", "not-a-token")
	require.ErrorIs(t, err, healthstore.ErrChangesTokenUnknown)
}

func TestGrant_RequiresConfirmation(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "grant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestSeed_Validation(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "seed", "--days", "0")
	require.Error(t, err)

	out, err := execute(t, "seed", "--days", "2", "--samples", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "Deleted")

	out, err = execute(t, "seed", "--days", "2", "--samples", "1", "--reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")
}

func TestConfigInitAndValidate(t *testing.T) {
	home := setupHome(t)

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration initialized successfully")
	assert.FileExists(t, filepath.Join(home, "config.yaml"))

	_, err = execute(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, "config", "validate", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Batch size: 50")

	overlay := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(overlay, []byte("export:\n  batch_size: 5000\n"), 0o600))
	_, err = execute(t, "--config", overlay, "config", "validate")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
