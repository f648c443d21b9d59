// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kortschak/h10"
	"github.com/kortschak/h10/internal/config"
	"github.com/kortschak/h10/internal/publish"
	"github.com/kortschak/h10/pmd"
)

func TestStreams(t *testing.T) {
	got, err := streams([]string{"HeartRate", " ecg", "acc", "battery"})
	require.NoError(t, err)
	assert.Equal(t, []h10.Kind{h10.KindHeartRate, h10.KindECG, h10.KindAcc, h10.KindBattery}, got)

	_, err = streams([]string{"ecg", "ppg"})
	assert.Error(t, err)
	_, err = streams([]string{"disconnect"})
	assert.Error(t, err)
}

func TestOverrides(t *testing.T) {
	rec := config.Record{AccRate: pmd.AccSampleFreq50, AccRange: pmd.AccRange4G}
	assert.Equal(t, pmd.Settings{
		{Type: pmd.SampleRateSetting, Val: []uint64{50}},
		{Type: pmd.RangeUnitSetting, Val: []uint64{4}},
	}, overrides(h10.KindAcc, rec))
	assert.Nil(t, overrides(h10.KindECG, rec))
	assert.Nil(t, overrides(h10.KindAcc, config.Record{}))
}

func TestNewSink(t *testing.T) {
	_, err := newSink(&config.Config{}, zap.NewNop())
	assert.ErrorIs(t, err, errNoSink)

	mr := miniredis.RunT(t)
	dir := filepath.Join(t.TempDir(), "rec")
	cfg := &config.Config{
		Record: config.Record{Dir: dir},
		Redis:  config.Redis{Addr: mr.Addr(), Stream: "h10"},
	}
	sink, err := newSink(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sink, 2)

	d := h10.ECG{Time: []int64{1, 2}, Lead1: []int32{-10, 20}}
	require.NoError(t, sink.Publish(context.Background(), publish.NewRecord(uuid.New(), d)))
	require.NoError(t, sink.Close())

	b, err := os.ReadFile(filepath.Join(dir, "ecg.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "1,-10\n2,20\n")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	n, err := client.XLen(context.Background(), "h10").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
