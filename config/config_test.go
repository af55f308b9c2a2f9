// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/codec"
	"github.com/creachadair/fibre/config"
	"github.com/creachadair/fibre/peers"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zapcore"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate default: unexpected error: %v", err)
	}

	// An empty file yields the defaults, with the result limit filled in.
	got, err := config.Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse empty: unexpected error: %v", err)
	}
	want := config.Default()
	want.MaxInput = fibre.MaxPayload
	want.MaxResult = fibre.MaxPayload - 5
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse empty (-want, +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fibre.yaml")
	const input = `
listen: /tmp/fibre.sock
max_payload: 4096
chunk_size: 100
log:
  level: debug
  development: true
`
	if err := os.WriteFile(path, []byte(input), 0600); err != nil {
		t.Fatalf("Write config: %v", err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	want := &config.Config{
		Listen:     "/tmp/fibre.sock",
		MaxPayload: 4096,
		MaxInput:   4096,
		MaxResult:  4091,
		ChunkSize:  100,
		Log:        config.LogConfig{Level: "debug", Development: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load (-want, +got):\n%s", diff)
	}

	log, err := got.Log.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger: unexpected error: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Logger does not enable debug level")
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "nonesuch.yaml")); !os.IsNotExist(err) {
		t.Errorf("Load missing: got %v, want not-exist", err)
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"UnknownField", "listen: x:1\ncolour: red\n", "field colour not found"},
		{"BadYAML", "listen: [\n", "parse"},
		{"NoListen", `listen: ""`, "listen address is required"},
		{"ZeroPayload", "max_payload: 0", "max_payload must be positive"},
		{"HugePayload", "max_payload: 1000000000", "exceeds the limit"},
		{"ResultTooBig", "max_payload: 100\nmax_result: 96", "does not fit"},
		{"NegativeInput", "max_input: -1", "max_input must not be negative"},
		{"NegativeResult", "max_result: -1", "must not be negative"},
		{"NegativeChunk", "chunk_size: -3", "must not be negative"},
		{"BadLevel", "log: {level: loud}", "log level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Parse(strings.NewReader(tc.input))
			if err == nil {
				t.Fatalf("Parse: got %+v, want error", cfg)
			} else if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Parse: got %v, want %q", err, tc.want)
			}
		})
	}

	t.Run("Multiple", func(t *testing.T) {
		_, err := config.Parse(strings.NewReader("listen: ''\nchunk_size: -1\n"))
		if err == nil {
			t.Fatal("Parse: got nil, want error")
		}
		msg := err.Error()
		if !strings.Contains(msg, "listen") || !strings.Contains(msg, "chunk_size") {
			t.Errorf("Parse: got %v, want both errors", err)
		}
	})
}

func TestConfigure(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("max_input: 12\nmax_result: 8\nchunk_size: 3\n"))
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	echoSig := fibre.MustSignature("echo", fibre.In("s", codec.String), fibre.Ret("s", codec.String))
	loc := peers.NewLocalWith(func() *fibre.Node {
		n := cfg.Configure(fibre.NewNode())
		if err := n.Handle(fibre.MustEndpoint(func(s string) string { return s }, echoSig)); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		return n
	})
	defer loc.Stop()
	ctx := context.Background()

	// The input is split into chunks, and a result within the limit succeeds.
	got, err := loc.A.Invoke(ctx, echoSig, "hi")
	if err != nil {
		t.Fatalf("Invoke: unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{"hi"}, got); diff != "" {
		t.Errorf("Invoke (-want, +got):\n%s", diff)
	}

	// A result over the limit fails.
	_, err = loc.A.Invoke(ctx, echoSig, "hello")
	var ce *fibre.CallError
	if !errors.As(err, &ce) || ce.Result == nil || ce.Result.Code != fibre.CodeEncodeFailed {
		t.Errorf("Invoke: got %v, want encoding failure", err)
	}

	// Inputs over the limit fail, though each chunk is small.
	_, err = loc.A.Invoke(ctx, echoSig, "a string longer than the limit")
	if !errors.As(err, &ce) || ce.Result == nil || ce.Result.Code != fibre.CodeDecodeFailed {
		t.Errorf("Invoke: got %v, want decoding failure", err)
	}
}
