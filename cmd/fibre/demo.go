// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/catalog"
	"github.com/creachadair/fibre/codec"
)

// demoCatalog is the set of endpoints served by the "serve" command.
var demoCatalog = catalog.New(
	fibre.MustEndpoint(func(text string) string { return text },
		fibre.MustSignature("echo",
			fibre.In("text", codec.String),
			fibre.Ret("text", codec.String),
		)),

	fibre.MustEndpoint(func(a, b int64) int64 { return a + b },
		fibre.MustSignature("add",
			fibre.In("a", codec.Int64),
			fibre.In("b", codec.Int64),
			fibre.Ret("sum", codec.Int64),
		)),

	fibre.MustEndpoint(func(x, y int32, moved *bool) uint32 {
		*moved = x != 0 || y != 0
		return uint32(x*x + y*y)
	}, fibre.MustSignature("move_to",
		fibre.In("x", codec.Int32),
		fibre.In("y", codec.Int32),
		fibre.Out("moved", codec.Bool),
		fibre.Ret("dist", codec.Uint32),
	)),

	fibre.MustEndpoint(func(name string) (string, error) {
		if name == "" {
			return "", fibre.ErrorData{Code: 400, Message: "empty name"}
		}
		return "hello, " + name, nil
	}, fibre.MustSignature("greet",
		fibre.In("name", codec.String),
		fibre.Ret("greeting", codec.String),
	)),

	fibre.MustEndpoint(func(ctx context.Context, ms uint32) (bool, error) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return true, nil
		}
	}, fibre.MustSignature("sleep",
		fibre.In("millis", codec.Uint32),
		fibre.Ret("ok", codec.Bool),
	)),

	fibre.MustEndpoint(func(ctx context.Context) (string, error) {
		n := fibre.ContextNode(ctx)
		if n == nil {
			return "", errors.New("no node in context")
		}
		return n.Metrics().String(), nil
	}, fibre.MustSignature("peer_stats",
		fibre.Ret("metrics", codec.String),
	)),
)
