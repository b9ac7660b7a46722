package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/auth"
)

func setEnv(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "spendlog.db")
	t.Setenv("SQLITE_DB_PATH", db)
	t.Setenv("JWT_SECRET", "ctl-secret")
	t.Setenv("GEMINI_API_KEY", "")
	return db
}

func TestAddUserAndToken(t *testing.T) {
	setEnv(t)
	var stdout, stderr bytes.Buffer

	err := run([]string{"adduser", "--user", "alice", "--password", "s3cret"}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "User alice created successfully")

	stdout.Reset()
	err = run([]string{"adduser", "--user", "alice", "--password", "x"}, strings.NewReader(""), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	stdout.Reset()
	err = run([]string{"token", "--user", "alice", "--password", "s3cret"}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	userID, err := auth.UserIDFromToken(strings.TrimSpace(stdout.String()), []byte("ctl-secret"))
	require.NoError(t, err)
	assert.NotEmpty(t, userID)

	err = run([]string{"token", "--user", "alice", "--password", "wrong"}, strings.NewReader(""), &stdout, &stderr)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAddUserPromptsForPassword(t *testing.T) {
	setEnv(t)
	var stdout, stderr bytes.Buffer

	err := run([]string{"adduser", "--user", "bob"}, strings.NewReader("hunter2\n"), &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Password: ")

	stdout.Reset()
	err = run([]string{"token", "--user", "bob"}, strings.NewReader("hunter2\n"), &stdout, &stderr)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(stdout.String()))
}

func TestAddUserValidation(t *testing.T) {
	setEnv(t)
	var stdout, stderr bytes.Buffer

	err := run([]string{"adduser", "--password", "x"}, strings.NewReader(""), &stdout, &stderr)
	assert.Error(t, err, "missing --user")

	err = run([]string{"adduser", "--user", "carol"}, strings.NewReader("   \n"), &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestDBFlagOverridesEnv(t *testing.T) {
	setEnv(t)
	other := filepath.Join(t.TempDir(), "other.db")
	var stdout, stderr bytes.Buffer

	require.NoError(t, run([]string{"--db", other, "adduser", "--user", "dave", "--password", "p"}, strings.NewReader(""), &stdout, &stderr))
	// The env database does not know dave.
	err := run([]string{"token", "--user", "dave", "--password", "p"}, strings.NewReader(""), &stdout, &stderr)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestParseWithoutModelUsesKeywords(t *testing.T) {
	setEnv(t)
	var stdout, stderr bytes.Buffer

	err := run([]string{"parse", "uber to the airport 30"}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"Transportation"}`, stdout.String())
	assert.Contains(t, stderr.String(), "GEMINI_API_KEY not set")
}
