package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.Local)

	files := []string{
		logFileName(now),
		logFileName(now.AddDate(0, 0, -3)),
		logFileName(now.AddDate(0, 0, -10)),
		logFileName(now.AddDate(0, 0, -30)),
		"other.log",
		"duelnet_notadate.log",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o644))
	}

	assert.Equal(t, 2, cleanOldLogs(dir, 7, now))

	assert.FileExists(t, filepath.Join(dir, files[0]))
	assert.FileExists(t, filepath.Join(dir, files[1]))
	assert.NoFileExists(t, filepath.Join(dir, files[2]))
	assert.NoFileExists(t, filepath.Join(dir, files[3]))
	assert.FileExists(t, filepath.Join(dir, "other.log"))
	assert.FileExists(t, filepath.Join(dir, "duelnet_notadate.log"))
}

func TestInitLoggerCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	f, err := InitLogger(LogConfig{Level: "bogus", Directory: dir})
	require.NoError(t, err)
	defer f.Close()

	assert.FileExists(t, filepath.Join(dir, logFileName(time.Now())))
}

func TestPlayerNameFromHost(t *testing.T) {
	tests := map[string]string{
		"gary-laptop.local": "gary-laptop",
		"ash_pc":            "ash_pc",
		"my host!":          "myhost",
		"":                  "Trainer",
		"...":               "Trainer",
	}
	for in, want := range tests {
		assert.Equal(t, want, PlayerNameFromHost(in), in)
	}
}

func TestGetHostInfo(t *testing.T) {
	info := GetHostInfo()
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.CPUs)
}
