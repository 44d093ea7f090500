// Package kconfig reads the small set of runtime-tunable knobs the
// network stack exposes — TCP send/receive buffer sizes and the
// ephemeral port range start — from a flat key=value text file,
// clamping every value to its implementation maximum. This mirrors how
// go-ublk reads tunables from environment variables (e.g.
// UBLK_DEVINFO_LEN in internal/ctrl/control.go): a handful of
// process-wide knobs read once at startup, not a layered config system.
package kconfig

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/kerrors"
)

// Config holds the tunable knobs, already clamped to their maxima.
type Config struct {
	TCPSendBuffer         int
	TCPRecvBuffer         int
	TCPEphemeralPortStart uint16
}

// Default returns the built-in defaults, used when no config file is
// given or a key is absent from it.
func Default() Config {
	return Config{
		TCPSendBuffer:         kdefaults.TCPDefaultSendBuffer,
		TCPRecvBuffer:         kdefaults.TCPDefaultRecvBuffer,
		TCPEphemeralPortStart: kdefaults.TCPEphemeralPortStart,
	}
}

// Load reads key=value pairs from path, starting from Default() and
// overriding recognized keys. Blank lines and lines starting with '#'
// are ignored. Unrecognized keys are ignored rather than rejected, so a
// config file shared across kernel builds doesn't break a narrower one.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, kerrors.Wrap("KCONFIG_LOAD", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		applyKey(&cfg, strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return cfg, kerrors.Wrap("KCONFIG_LOAD", err)
	}

	cfg.clamp()
	return cfg, nil
}

func applyKey(cfg *Config, key, value string) {
	switch key {
	case "tcp_send_buffer":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.TCPSendBuffer = n
		}
	case "tcp_recv_buffer":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.TCPRecvBuffer = n
		}
	case "tcp_ephemeral_port_start":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 && n <= 0xFFFF {
			cfg.TCPEphemeralPortStart = uint16(n)
		}
	}
}

// clamp bounds every field to its implementation maximum, and to a
// sane minimum so a zero or negative override can't produce a
// zero-capacity buffer.
func (cfg *Config) clamp() {
	if cfg.TCPSendBuffer < kdefaults.TCPDefaultMSS {
		cfg.TCPSendBuffer = kdefaults.TCPDefaultMSS
	}
	if cfg.TCPSendBuffer > kdefaults.TCPMaxSendBuffer {
		cfg.TCPSendBuffer = kdefaults.TCPMaxSendBuffer
	}
	if cfg.TCPRecvBuffer < kdefaults.TCPDefaultMSS {
		cfg.TCPRecvBuffer = kdefaults.TCPDefaultMSS
	}
	if cfg.TCPRecvBuffer > kdefaults.TCPMaxRecvBuffer {
		cfg.TCPRecvBuffer = kdefaults.TCPMaxRecvBuffer
	}
	if cfg.TCPEphemeralPortStart < 1024 {
		cfg.TCPEphemeralPortStart = kdefaults.TCPEphemeralPortStart
	}
	if int(cfg.TCPEphemeralPortStart) > kdefaults.TCPEphemeralPortEnd {
		cfg.TCPEphemeralPortStart = kdefaults.TCPEphemeralPortStart
	}
}
