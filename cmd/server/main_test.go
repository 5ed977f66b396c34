package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crvs/internal/platform/config"
)

func TestConfigSource(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("file source hands back a watch that stops with its context", func(t *testing.T) {
		raw, err := os.ReadFile(filepath.Join("..", "..", "internal", "events", "eventconfig", "testdata", "events.yaml"))
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "events.yaml")
		require.NoError(t, os.WriteFile(path, raw, 0o600))

		src, watch, err := configSource(config.Server{EventConfigFile: path}, log)
		require.NoError(t, err)
		require.NotNil(t, watch)
		_, err = src.Get(context.Background(), "tennis-club-membership")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- watch(ctx) }()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("watch did not stop after cancel")
		}
	})

	t.Run("remote source has nothing to watch", func(t *testing.T) {
		src, watch, err := configSource(config.Server{
			CountryConfigURL:     "http://localhost:3040",
			CountryConfigTimeout: time.Second,
		}, log)
		require.NoError(t, err)
		assert.NotNil(t, src)
		assert.Nil(t, watch)
	})

	t.Run("broken file fails before anything starts", func(t *testing.T) {
		_, watch, err := configSource(config.Server{EventConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}, log)
		require.Error(t, err)
		assert.Nil(t, watch)
	})
}
