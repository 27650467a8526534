package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	err := app.Run(append([]string{"ingestor", "--env-file", ""}, args...))
	return out.String(), err
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", excerpt("a\n  b\tc", 10))
	assert.Equal(t, "abc...", excerpt("abcdef", 3))
	assert.Equal(t, "äöü", excerpt("äöü", 3))
}

func TestConfigCommand(t *testing.T) {
	t.Run("defaults as yaml", func(t *testing.T) {
		out, err := runApp(t, "config")
		require.NoError(t, err)
		assert.Contains(t, out, "data_dir: ingestor-data")
	})

	t.Run("data dir override as toml", func(t *testing.T) {
		out, err := runApp(t, "--data-dir", "/var/lib/ingestor", "config", "--format", "toml")
		require.NoError(t, err)
		assert.Contains(t, out, "data_dir = ")
		assert.Contains(t, out, "/var/lib/ingestor")
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ingestor.yaml")
		require.NoError(t, os.WriteFile(path, []byte("data_dir: /srv/data\n"), 0o644))
		out, err := runApp(t, "--config", path, "config")
		require.NoError(t, err)
		assert.Contains(t, out, "data_dir: /srv/data")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := runApp(t, "config", "--format", "ini")
		assert.Error(t, err)
	})
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(env, []byte("INGESTOR_TEST_DATA_DIR="+dir+"\n"), 0o644))
	cfg := filepath.Join(dir, "ingestor.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("data_dir: ${INGESTOR_TEST_DATA_DIR}/data\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("INGESTOR_TEST_DATA_DIR") })

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"ingestor", "--env-file", env, "--config", cfg, "config"}))
	assert.Contains(t, out.String(), "data_dir: "+dir+"/data")
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run([]string{"ingestor", "--env-file", filepath.Join(t.TempDir(), "absent.env"), "config"})
	assert.NoError(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runApp(t, "--log-level", "loud", "config")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestReembedCommandFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero batch size", []string{"reembed", "--tenant", "acme", "--batch-size", "0"}, "batch-size must be greater than 0"},
		{"negative report interval", []string{"reembed", "--tenant", "acme", "--report-interval", "-1"}, "report-interval must be greater than 0"},
		{"missing tenant", []string{"reembed"}, "tenant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestStatusRequiresJobOrTenant(t *testing.T) {
	_, err := runApp(t, "status")
	assert.ErrorContains(t, err, "either --job or --tenant is required")
}

func TestCommandsRegistered(t *testing.T) {
	app := newApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{
		"ingest", "status", "search", "handlers", "dead-letters", "reembed", "watch", "serve", "config",
	}, names)
}
