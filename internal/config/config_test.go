// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/h10/pmd"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "h10.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("h10rec", nil)
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Name:        DefaultNamePrefix,
		ScanTimeout: DefaultScanTimeout,
		Timeout:     DefaultTimeout,
		Log:         Log{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Record:      Record{Streams: []string{"heartrate", "ecg", "acc"}},
		MQTT:        MQTT{ClientID: "h10", Topic: "h10"},
		Redis:       Redis{Stream: "h10"},
	}, cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
address = "A0:9E:1A:00:00:01"
scan_timeout = "10s"

[log]
level = "debug"
format = "json"

[record]
streams = ["ecg"]
duration = "5m"
dir = "/tmp/h10"
acc_rate = 50

[mqtt]
broker = "tcp://localhost:1883"
qos = 1

[redis]
addr = "localhost:6379"
stream = "sensor:h10"
max_len = 10000
`)

	cfg, err := Load("h10rec", []string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "A0:9E:1A:00:00:01", cfg.Address)
	assert.Equal(t, DefaultNamePrefix, cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, Record{
		Streams:  []string{"ecg"},
		Duration: 5 * time.Minute,
		Dir:      "/tmp/h10",
		AccRate:  50,
	}, cfg.Record)
	assert.Equal(t, MQTT{Broker: "tcp://localhost:1883", ClientID: "h10", Topic: "h10", QoS: 1}, cfg.MQTT)
	assert.Equal(t, Redis{Addr: "localhost:6379", Stream: "sensor:h10", MaxLen: 10000}, cfg.Redis)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
name = "Polar H10 1234"
timeout = "2s"

[record]
dir = "/from/file"
`)
	t.Setenv("H10_CONFIG", path)
	t.Setenv("H10_TIMEOUT", "3s")
	t.Setenv("H10_RECORD_DIR", "/from/env")
	t.Setenv("H10_RECORD_STREAMS", "heartrate,acc")

	cfg, err := Load("h10rec", []string{"--dir", "/from/flag"})
	require.NoError(t, err)
	assert.Equal(t, "Polar H10 1234", cfg.Name, "file value")
	assert.Equal(t, 3*time.Second, cfg.Timeout, "env over file")
	assert.Equal(t, "/from/flag", cfg.Record.Dir, "flag over env")
	assert.Equal(t, []string{"heartrate", "acc"}, cfg.Record.Streams, "env list")
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load("h10rec", []string{
		"--addr", "a0:9e:1a:00:00:02",
		"--streams", "ecg,acc",
		"--acc-range", "4",
		"--redis-addr", "redis:6379",
		"--log-level", "warn",
	})
	require.NoError(t, err)
	assert.Equal(t, "a0:9e:1a:00:00:02", cfg.Address)
	assert.Equal(t, []string{"ecg", "acc"}, cfg.Record.Streams)
	assert.Equal(t, pmd.AccRange4G, cfg.Record.AccRange)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
		want string
	}{
		{
			name: "invalid_file",
			args: func(t *testing.T) []string {
				return []string{"--config", writeConfig(t, "This is not a valid TOML file")}
			},
			want: "failed to read config file",
		},
		{
			name: "missing_file",
			args: func(t *testing.T) []string {
				return []string{"--config", filepath.Join(t.TempDir(), "missing.toml")}
			},
			want: "failed to read config file",
		},
		{
			name: "acc_rate",
			args: func(*testing.T) []string { return []string{"--acc-rate", "60"} },
			want: "invalid accelerometer sample rate: 60",
		},
		{
			name: "acc_range_file",
			args: func(t *testing.T) []string {
				return []string{"--config", writeConfig(t, "[record]\nacc_range = 16\n")}
			},
			want: "invalid accelerometer range: 16",
		},
		{
			name: "log_format",
			args: func(*testing.T) []string { return []string{"--log-format", "xml"} },
			want: "invalid log format",
		},
		{
			name: "timeout",
			args: func(*testing.T) []string { return []string{"--timeout", "0s"} },
			want: "invalid timeout",
		},
		{
			name: "qos",
			args: func(*testing.T) []string { return []string{"--mqtt-qos", "3"} },
			want: "invalid mqtt qos",
		},
		{
			name: "unknown_flag",
			args: func(*testing.T) []string { return []string{"--frobnicate"} },
			want: "unknown flag",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load("h10rec", test.args(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.want)
		})
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := Load("h10rec", []string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}
