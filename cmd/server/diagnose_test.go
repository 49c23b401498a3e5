package main

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hls-live/internal/platform/config"
)

func TestCheckPort(t *testing.T) {
	free, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	freePort := free.Addr().(*net.TCPAddr).Port
	require.NoError(t, free.Close())
	assert.NoError(t, checkPort("api port", freePort).err)

	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	assert.Error(t, checkPort("api port", busy.Addr().(*net.TCPAddr).Port).err)
}

func TestCheckDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "live")
	c := checkDir(dir)
	require.NoError(t, c.err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckFFmpeg_missing(t *testing.T) {
	c := checkFFmpeg(t.Context(), filepath.Join(t.TempDir(), "no-ffmpeg"))
	assert.Error(t, c.err)
}

func TestCheckIngestAPI(t *testing.T) {
	assert.Contains(t, checkIngestAPI(config.Config{}).detail, "not set")
	assert.Equal(t, "http://srs:1985", checkIngestAPI(config.Config{IngestAPIURL: "http://srs:1985"}).detail)
}

func TestPrintChecks(t *testing.T) {
	var buf bytes.Buffer
	failed := printChecks(&buf, []check{
		{name: "ffmpeg", detail: "ffmpeg version 7.1"},
		{name: "api port", err: errors.New(":3000 unavailable")},
	})
	assert.Equal(t, 1, failed)
	assert.Contains(t, buf.String(), "[ OK ] ffmpeg")
	assert.Contains(t, buf.String(), "[FAIL] api port")
}
