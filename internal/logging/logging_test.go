package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"

	"joftmode/internal/config"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lvl, test.ShouldEqual, zapcore.WarnLevel)

	_, err = ParseLevel("chatty")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "chatty")
}

func TestNewTeesToEveryOutput(t *testing.T) {
	dir := t.TempDir()
	var console, extra bytes.Buffer
	cfg := config.Default().Logging
	cfg.File = filepath.Join(dir, "joftmode.log")

	logger, err := New(cfg, &console, &extra)
	test.That(t, err, test.ShouldBeNil)

	logger.Named("gps").Infow("gps poller started", "interval", "100ms")
	logger.Debugw("hidden at info")
	test.That(t, logger.Close(), test.ShouldBeNil)

	for _, out := range []string{console.String(), extra.String()} {
		test.That(t, out, test.ShouldContainSubstring, "gps poller started")
		test.That(t, out, test.ShouldContainSubstring, "gps")
		test.That(t, out, test.ShouldNotContainSubstring, "hidden at info")
	}
	// Non-terminal writers never get ANSI color codes.
	test.That(t, strings.Contains(extra.String(), "\x1b["), test.ShouldBeFalse)

	b, err := os.ReadFile(cfg.File)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(b), test.ShouldContainSubstring, "gps poller started")
}

func TestNewDebugLevel(t *testing.T) {
	var extra bytes.Buffer
	cfg := config.Default().Logging
	cfg.Level = "debug"

	logger, err := New(cfg, nil, &extra)
	test.That(t, err, test.ShouldBeNil)
	logger.Debugw("imu heartbeat", "n", 25)
	test.That(t, logger.Close(), test.ShouldBeNil)
	test.That(t, extra.String(), test.ShouldContainSubstring, "imu heartbeat")
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := config.Default().Logging
	cfg.Level = "loud"
	_, err := New(cfg, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
