package proxyconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "users": ["alice", "bob"],
  "subs": {
    "default": {
      "tokyo-1": {"protocol": "hy2", "host": "tokyo-1.example.com"},
      "osaka-1": {"protocol": "vmess", "host": "osaka-1.example.com"},
      "nagoya-1": {"protocol": "vless", "host": "nagoya-1.example.com"}
    },
    "premium": {
      "premium-1": {"protocol": "hy2-v2", "host": "premium-1.example.com"}
    }
  }
}`

func TestParse(t *testing.T) {
	conf, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, conf.Users())
	assert.True(t, conf.HasUser("alice"))
	assert.False(t, conf.HasUser("mallory"))
}

func TestParse_PreservesProxyOrder(t *testing.T) {
	conf, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	entries := conf.SubscriptionProxies("default")
	require.Len(t, entries, 3)
	assert.Equal(t, "tokyo-1", entries[0].Name)
	assert.Equal(t, "osaka-1", entries[1].Name)
	assert.Equal(t, "nagoya-1", entries[2].Name)
	assert.Equal(t, "hy2", entries[0].Protocol)
	assert.Equal(t, "tokyo-1.example.com", entries[0].Host)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	assert.Error(t, err)
}

func TestParse_SubscriptionMustBeObject(t *testing.T) {
	_, err := Parse([]byte(`{"users": [], "subs": {"default": ["not", "an", "object"]}}`))
	assert.Error(t, err)
}

func TestSubs(t *testing.T) {
	conf, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "premium"}, conf.Subs())
}

func TestSubscriptionProxies_FallsBackToDefault(t *testing.T) {
	conf, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, conf.SubscriptionProxies("default"), conf.SubscriptionProxies(""))
	assert.Equal(t, conf.SubscriptionProxies("default"), conf.SubscriptionProxies("no-such-sub"))

	premium := conf.SubscriptionProxies("premium")
	require.Len(t, premium, 1)
	assert.Equal(t, "premium-1", premium[0].Name)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.True(t, conf.HasUser("bob"))
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
