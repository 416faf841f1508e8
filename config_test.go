package imapsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
tracker_db: /var/lib/imapsync/trackers.db
accounts:
  - name: work
    host: imap.example.com
    port: 993
    username: alice@example.com
    password: hunter2
    flag_rule: local-wins
    delete_rule: push
    best_effort: true
    schedule: "@every 10m"
    folder_map:
      "INBOX.Spam": ""
      "INBOX.Sent": "Sent"
  - host: imap.other.example
    port: 993
    username: bob@other.example
    password: secret
    use_oauth2: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/imapsync/trackers.db", cfg.TrackerDB)
	require.Len(t, cfg.Accounts, 2)

	work := cfg.Accounts[0]
	require.Equal(t, "work", work.label())
	require.Equal(t, LocalWins, work.flagPolicy())
	require.True(t, work.pushDeletes())
	require.True(t, work.BestEffort)
	require.Equal(t, "@every 10m", work.Schedule)
	require.Equal(t, map[string]string{"INBOX.Spam": "", "INBOX.Sent": "Sent"}, work.FolderMap)

	other := cfg.Accounts[1]
	require.Equal(t, "bob@other.example", other.label())
	require.Equal(t, ServerWins, other.flagPolicy())
	require.False(t, other.pushDeletes())
	require.True(t, other.UseOAuth2)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no accounts",
			content: "accounts: []\n",
		},
		{
			name: "missing host",
			content: `
accounts:
  - port: 993
    username: a@b
    password: x
`,
		},
		{
			name: "bad port",
			content: `
accounts:
  - host: imap.example.com
    port: 70000
    username: a@b
    password: x
`,
		},
		{
			name: "unknown flag rule",
			content: `
accounts:
  - host: imap.example.com
    port: 993
    username: a@b
    password: x
    flag_rule: coin-toss
`,
		},
		{
			name: "contradictory folder map",
			content: `
accounts:
  - host: imap.example.com
    port: 993
    username: a@b
    password: x
    folder_map:
      "INBOX.Sent": "Sent"
      "Sent Items": "Sent"
`,
		},
		{
			name:    "not yaml",
			content: "{{{",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
