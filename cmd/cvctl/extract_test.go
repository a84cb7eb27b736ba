package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cvbank/cvbank-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExtract_DOCX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.docx")
	require.NoError(t, os.WriteFile(path, testutil.MinimalDOCX("Senior Go Engineer", "Built payment systems"), 0o644))

	out, err := runCLI(t, "extract", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Senior Go Engineer")
	assert.Contains(t, out, "Built payment systems")
}

func TestExtract_UnsupportedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := runCLI(t, "extract", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestMigrateDown_RejectsBadSteps(t *testing.T) {
	t.Setenv("CVBANK_DATABASE_DRIVER", "postgres")

	_, err := runCLI(t, "migrate", "down", "zero")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive integer")
}
