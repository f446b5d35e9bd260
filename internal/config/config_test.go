package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
accountId: acct-1
accountEmail: ops@example.com
apiHost: https://api.example.com/
apiToken: primary
auxTokens:
  - aux-one
  - aux-two
webhookUrl: https://hooks.example.com/x
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "acct-1", cfg.AccountID)
	require.Equal(t, "ops@example.com", cfg.AccountEmail)
	require.Equal(t, "https://api.example.com", cfg.APIHost, "trailing slash should be trimmed")
	require.Equal(t, []string{"primary", "aux-one", "aux-two"}, cfg.Tokens())
	require.Equal(t, DefaultListPrefix, cfg.ListPrefix)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
accountId: from-file
apiHost: https://api.example.com
apiToken: file-token
`)
	t.Setenv("GATEWAY_ACCOUNT_ID", "from-env")
	t.Setenv("GATEWAY_API_TOKEN", "env-token")
	t.Setenv("GATEWAY_AUX_TOKEN_2", "env-aux-two")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.AccountID)
	require.Equal(t, "env-token", cfg.APIToken)
	// Slot 1 was never set, so only the second aux slot is populated and the
	// empty first slot is filtered out of the credential set.
	require.Equal(t, []string{"env-token", "env-aux-two"}, cfg.Tokens())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_ACCOUNT_ID", "acct-env")
	t.Setenv("GATEWAY_API_HOST", "https://api.example.com")
	t.Setenv("GATEWAY_API_TOKEN", "tok")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "acct-env", cfg.AccountID)
	require.Equal(t, []string{"tok"}, cfg.Tokens())
}

func TestTokensFiltersEmptyEntries(t *testing.T) {
	cfg := &Config{APIToken: "a", AuxTokens: []string{"", "b", ""}}
	require.Equal(t, []string{"a", "b"}, cfg.Tokens())

	cfg = &Config{AuxTokens: []string{"only-aux"}}
	require.Equal(t, []string{"only-aux"}, cfg.Tokens())
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing account", "apiHost: https://api.example.com\napiToken: t\n"},
		{"missing host", "accountId: a\napiToken: t\n"},
		{"bad host scheme", "accountId: a\napiHost: ftp://api.example.com\napiToken: t\n"},
		{"no tokens", "accountId: a\napiHost: https://api.example.com\n"},
		{"too many aux tokens", "accountId: a\napiHost: https://api.example.com\napiToken: t\nauxTokens: [x, x, x, x]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.yaml))
			require.Error(t, err)
		})
	}
}
