//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	old := Default
	Default = New(&buf)
	defer func() {
		Default = old
		SetLevel(LevelInfo)
	}()

	SetLevel(LevelInfo)
	Debugf("hidden %s", "debug")
	Infof("visible %s", "info")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible info")
}

func TestSetLevelDebugEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	old := Default
	Default = New(&buf)
	defer func() {
		Default = old
		SetLevel(LevelInfo)
	}()

	SetLevel(LevelDebug)
	Debug("now visible")
	require.Contains(t, buf.String(), "now visible")
}

func TestSetLevelUnknownFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	old := Default
	Default = New(&buf)
	defer func() {
		Default = old
		SetLevel(LevelInfo)
	}()

	SetLevel("verbose")
	Debug("still hidden")
	Warn("warned")

	lines := strings.TrimSpace(buf.String())
	assert.NotContains(t, lines, "still hidden")
	assert.Contains(t, lines, "warned")
}
