package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"

	"hls-live/internal/platform/config"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check ffmpeg, directories and ports before serving",
	Long: `Check that the server can run on this host: ffmpeg is executable, the HLS
directory is writable and the configured ports are free.

Exits non-zero when any check fails.`,
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().Duration("timeout", 10*time.Second, "timeout for the ffmpeg check")
}

type check struct {
	name   string
	detail string
	err    error
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	envFile, _ := cmd.Flags().GetString("env-file")
	checks := []check{
		checkHost(ctx),
		checkEnvFile(envFile),
		checkFFmpeg(ctx, cfg.FFmpegPath),
		checkDir(filepath.Join(cfg.HLSPath, "live")),
		checkPort("api port", cfg.Port),
		checkPort("http port", cfg.HTTPPort),
		checkIngestAPI(cfg),
	}

	failed := printChecks(cmd.OutOrStdout(), checks)
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printChecks(w io.Writer, checks []check) int {
	failed := 0
	for _, c := range checks {
		if c.err != nil {
			failed++
			fmt.Fprintf(w, "[FAIL] %-12s %v\n", c.name, c.err)
			continue
		}
		fmt.Fprintf(w, "[ OK ] %-12s %s\n", c.name, c.detail)
	}
	return failed
}

func checkHost(ctx context.Context) check {
	c := check{name: "host"}
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		// Informational only.
		c.detail = "unknown: " + err.Error()
		return c
	}
	c.detail = fmt.Sprintf("%s %s %s (%s)", info.OS, info.Platform, info.PlatformVersion, info.KernelArch)
	return c
}

func checkEnvFile(path string) check {
	c := check{name: "env file"}
	if _, err := os.Stat(path); err != nil {
		c.detail = path + " not found, using environment and defaults"
		return c
	}
	c.detail = path + " loaded"
	return c
}

func checkFFmpeg(ctx context.Context, bin string) check {
	c := check{name: "ffmpeg"}
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").Output()
	if err != nil {
		c.err = fmt.Errorf("run %s -version: %w", bin, err)
		return c
	}
	line, _, _ := bufio.NewReader(bytes.NewReader(out)).ReadLine()
	c.detail = string(line)
	return c
}

func checkDir(dir string) check {
	c := check{name: "hls dir"}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.err = fmt.Errorf("create %s: %w", dir, err)
		return c
	}
	f, err := os.CreateTemp(dir, ".diagnose-*")
	if err != nil {
		c.err = fmt.Errorf("%s is not writable: %w", dir, err)
		return c
	}
	name := f.Name()
	c.err = errors.Join(f.Close(), os.Remove(name))
	c.detail = dir + " writable"
	return c
}

func checkPort(name string, port int) check {
	c := check{name: name}
	addr := ":" + strconv.Itoa(port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		c.err = fmt.Errorf("%s unavailable: %w", addr, err)
		return c
	}
	_ = ln.Close()
	c.detail = addr + " free"
	return c
}

func checkIngestAPI(cfg config.Config) check {
	c := check{name: "ingest api"}
	if cfg.IngestAPIURL == "" {
		c.detail = "INGEST_API_URL not set, rejected publishers are not disconnected"
		return c
	}
	c.detail = cfg.IngestAPIURL
	return c
}
