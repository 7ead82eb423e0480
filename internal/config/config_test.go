package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleINI = `
[cpanel]
url = https://cpanel.example.com:2083/
user = jward
api_token = S3CR3T

[dns]
domain = example.com
record_name = home.example.com
ttl = 600

[local]
ip_file = /var/lib/cpddns/last_ip.txt

[ip_service]
provider_url = https://ipv4.icanhazip.com

[http]
timeout = 5s

[log]
level = DEBUG
format = json

[metrics]
textfile = /var/lib/node_exporter/cpddns.prom
`

func writeINI(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeINI(t, sampleINI))
	require.NoError(t, err)

	assert.Equal(t, CPanel{URL: "https://cpanel.example.com:2083", User: "jward", APIToken: "S3CR3T"}, cfg.CPanel)
	assert.Equal(t, DNS{Domain: "example.com", RecordName: "home.example.com.", TTL: 600}, cfg.DNS)
	assert.Equal(t, "/var/lib/cpddns/last_ip.txt", cfg.Local.IPFile)
	assert.Equal(t, "https://ipv4.icanhazip.com", cfg.IPService.ProviderURL)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, "/var/lib/node_exporter/cpddns.prom", cfg.Metrics.Textfile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeINI(t, `
[cpanel]
url = https://cpanel.example.com:2083
user = jward
api_token = S3CR3T
[dns]
domain = example.com
record_name = home.example.com.
`))
	require.NoError(t, err)

	assert.Equal(t, "home.example.com.", cfg.DNS.RecordName)
	assert.Equal(t, 300, cfg.DNS.TTL)
	assert.Equal(t, "last_ip.txt", cfg.Local.IPFile)
	assert.Equal(t, "https://api.ipify.org", cfg.IPService.ProviderURL)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, Log{Level: "info", Format: "text"}, cfg.Log)
	assert.Empty(t, cfg.Metrics.Textfile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("CPDDNS_CPANEL_API_TOKEN", "FROM-ENV")
	t.Setenv("CPDDNS_DNS_TTL", "120")
	t.Setenv("CPDDNS_HTTP_TIMEOUT", "30")

	cfg, err := Load(writeINI(t, sampleINI))
	require.NoError(t, err)
	assert.Equal(t, "FROM-ENV", cfg.CPanel.APIToken)
	assert.Equal(t, 120, cfg.DNS.TTL)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "jward", cfg.CPanel.User, "keys without an override come from the file")
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CPDDNS_CPANEL_URL", "https://cpanel.example.com:2083")
	t.Setenv("CPDDNS_CPANEL_USER", "jward")
	t.Setenv("CPDDNS_CPANEL_API_TOKEN", "S3CR3T")
	t.Setenv("CPDDNS_DNS_DOMAIN", "example.com")
	t.Setenv("CPDDNS_DNS_RECORD_NAME", "home.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.NoError(t, err)
	assert.Equal(t, "home.example.com.", cfg.DNS.RecordName)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"ttl not a number": "[dns]\nttl = five minutes\n",
		"bad timeout":      "[http]\ntimeout = soon\n",
		"unparseable file": "[cpanel\nurl = x\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeINI(t, content))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeINI(t, `
[cpanel]
url = cpanel.example.com
[dns]
ttl = 0
[ip_service]
provider_url = ftp://example.com
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"cpanel.url",
		"cpanel.user is required",
		"cpanel.api_token or cpanel.api_token_file is required",
		"dns.domain is required",
		"dns.record_name is required",
		"dns.ttl must be a positive",
		"ip_service.provider_url",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestToken(t *testing.T) {
	dir := t.TempDir()

	t.Run("Inline", func(t *testing.T) {
		cfg := &Config{CPanel: CPanel{APIToken: "S3CR3T", APITokenFile: "/does/not/matter"}}
		tok, err := cfg.Token()
		require.NoError(t, err)
		assert.Equal(t, "S3CR3T", tok)
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(dir, "token")
		require.NoError(t, os.WriteFile(path, []byte("FROMFILE\nignored\n"), 0600))
		cfg := &Config{CPanel: CPanel{APITokenFile: path}}
		tok, err := cfg.Token()
		require.NoError(t, err)
		assert.Equal(t, "FROMFILE", tok)
	})

	t.Run("ReadOnlyFile", func(t *testing.T) {
		path := filepath.Join(dir, "token-ro")
		require.NoError(t, os.WriteFile(path, []byte("FROMFILE"), 0400))
		cfg := &Config{CPanel: CPanel{APITokenFile: path}}
		_, err := cfg.Token()
		assert.NoError(t, err)
	})

	t.Run("WorldReadable", func(t *testing.T) {
		path := filepath.Join(dir, "token-open")
		require.NoError(t, os.WriteFile(path, []byte("FROMFILE"), 0600))
		require.NoError(t, os.Chmod(path, 0644))
		cfg := &Config{CPanel: CPanel{APITokenFile: path}}
		_, err := cfg.Token()
		var pe permissionError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("EmptyFile", func(t *testing.T) {
		path := filepath.Join(dir, "token-empty")
		require.NoError(t, os.WriteFile(path, []byte("\n"), 0600))
		cfg := &Config{CPanel: CPanel{APITokenFile: path}}
		_, err := cfg.Token()
		assert.Error(t, err)
	})

	t.Run("Unset", func(t *testing.T) {
		_, err := (&Config{}).Token()
		assert.Error(t, err)
	})
}
