package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parnass/internal/domain"
	"parnass/internal/pkg/jwt"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "parnass.db"))
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("LOG_LEVEL", "error")
}

func TestCLI_TenantLifecycle(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "migrate")
	require.NoError(t, err)

	out, err := run(t, "tenant", "upsert", "beth-el",
		"--types", "daily,monthly",
		"--daily-price", "18",
		"--monthly-price", "360.5",
		"--currency", "usd",
		"--timezone", "Asia/Jerusalem",
		"--require-approval",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "tenant beth-el saved")

	out, err = run(t, "tenant", "show", "beth-el")
	require.NoError(t, err)
	var s domain.TenantSponsorshipSettings
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &s))
	assert.True(t, s.DailyEnabled)
	assert.True(t, s.MonthlyEnabled)
	assert.False(t, s.YearlyEnabled)
	assert.Equal(t, "USD", s.Currency)
	assert.Equal(t, "360.5", s.MonthlyPrice.String())
	assert.True(t, s.RequireApproval)

	out, err = run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "expired=0")

	_, err = run(t, "tenant", "show", "nobody")
	assert.Error(t, err)
}

func TestCLI_TenantUpsertValidation(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "tenant", "upsert", "beth-el", "--types", "weekly")
	assert.ErrorContains(t, err, "unknown sponsorship type")

	_, err = run(t, "tenant", "upsert", "beth-el", "--daily-price", "-1")
	assert.ErrorContains(t, err, "must not be negative")

	_, err = run(t, "tenant", "upsert", "beth-el", "--timezone", "Mars/Olympus")
	assert.ErrorContains(t, err, "unknown timezone")
}

func TestCLI_Token(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "token", "--tenant", "beth-el", "--subject", "gabbai")
	require.NoError(t, err)

	claims, err := jwt.New("cli-test-secret", time.Hour).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "beth-el", claims.TenantID)
	assert.True(t, claims.CanAdminister("beth-el"))

	_, err = run(t, "token", "--role", "admin")
	assert.Error(t, err)
	_, err = run(t, "token", "--role", "owner", "--tenant", "x")
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "parnass dev")
}
