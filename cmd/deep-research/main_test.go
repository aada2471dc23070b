package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	state := &research.ResearchState{
		FinalReport: "# Research Report: X\n",
		Notes: []research.Note{
			{SubQuestion: "What is X?", Summary: "X is a protocol.", SourceURLs: []string{"https://x.example"}},
		},
	}
	opts := options{outDir: filepath.Join(dir, "reports"), notesPath: filepath.Join(dir, "notes.json")}

	path, err := writeOutputs(state, opts, time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reports", "report_1700000000.md"), path)

	report, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, state.FinalReport, string(report))

	data, err := os.ReadFile(opts.notesPath)
	require.NoError(t, err)
	var notes []research.Note
	require.NoError(t, json.Unmarshal(data, &notes))
	assert.Equal(t, state.Notes, notes)
}

func TestPromptQuery(t *testing.T) {
	var out bytes.Buffer
	q, err := promptQuery(strings.NewReader("  What is X?  \n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "What is X?", q)
	assert.Contains(t, out.String(), "Enter research question")

	q, err = promptQuery(strings.NewReader("no newline"), &out)
	require.NoError(t, err)
	assert.Equal(t, "no newline", q)
}

func TestRootCmdRejectsEmptyQuery(t *testing.T) {
	cmd := newRootCmd(&config.Config{})
	cmd.SetArgs([]string{"--query", "   "})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	assert.ErrorIs(t, cmd.Execute(), research.ErrEmptyQuery)
}

func TestRootCmdPromptsForQuery(t *testing.T) {
	cmd := newRootCmd(&config.Config{})
	cmd.SetIn(strings.NewReader("\n"))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	assert.ErrorIs(t, cmd.Execute(), research.ErrEmptyQuery)
	assert.Contains(t, out.String(), "Enter research question")
}
