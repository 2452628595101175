package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEndToEndAgainstMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(input, []byte(
		"type, client, tx, amount\n"+
			"deposit, 1, 1, 1.0\n"+
			"deposit, 2, 2, 2.0\n"+
			"deposit, 1, 3, 2.0\n"+
			"withdrawal, 1, 4, 1.5\n"+
			"dispute, 2, 2,\n"+
			"chargeback, 2, 2,\n",
	), 0o644))

	stdoutPath := filepath.Join(dir, "out.txt")
	stdoutFile, err := os.Create(stdoutPath)
	require.NoError(t, err)
	defer stdoutFile.Close()

	code := run([]string{input}, stdoutFile, os.Stderr)
	assert.Equal(t, 0, code)

	stdoutFile.Close()
	out, err := os.ReadFile(stdoutPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "client,available,held,total,locked")
	assert.Contains(t, string(out), "1,1.5000,0.0000,1.5000,false")
	assert.Contains(t, string(out), "2,0.0000,0.0000,0.0000,true")
}

func TestRunRejectsMissingArgs(t *testing.T) {
	code := run(nil, os.Stdout, os.Stderr)
	assert.Equal(t, 1, code)
}

func TestRunEmptyPgDSNFallsBackToMemory(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("type, client, tx, amount\n"), 0o644))

	code := run([]string{"-pg-dsn", "", input}, os.Stdout, os.Stderr)
	// empty -pg-dsn leaves backend unselected (flag default), so this
	// still runs against the memory backend and succeeds.
	assert.Equal(t, 0, code)
}
