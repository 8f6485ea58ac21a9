package proxyconf

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryString(t *testing.T) {
	got := queryString([][2]string{
		{"a", "1"},
		{"b", "x y"},
		{"c", "p,q/r"},
	})
	assert.Equal(t, "a=1&b=x+y&c=p%2Cq%2Fr", got)
}

func TestHysteria2URL(t *testing.T) {
	g := testGenerator(t)
	node := Node{
		Name:     "tokyo-1",
		Type:     "hysteria2",
		Server:   "tokyo-1.example.com",
		Port:     443,
		Password: "secret",
	}

	got := g.hysteria2URL(node, node.Password)
	want := "hysteria2://secret@tokyo-1.example.com:443?" +
		"peer=i.am.com&insecure=1&alpn=h3&obfs=salamander&obfs-password=obfs-secret" +
		"&udp=1&fragment=1%2C40-60%2C30-50#tokyo-1"
	assert.Equal(t, want, got)
}

func TestVmessURL(t *testing.T) {
	g := testGenerator(t)
	node := Node{
		Name:   "osaka-1",
		Type:   "vmess",
		Server: "osaka-1.example.com",
		Port:   41234,
		UUID:   "271d7f8c-987f-55a2-fe2e-52e1c1c39f76",
	}

	got := g.vmessURL(node)
	require.True(t, strings.HasPrefix(got, "vmess://"))
	require.True(t, strings.HasSuffix(got, "?fragment=1,40-60,30-50"))

	encoded := strings.TrimSuffix(strings.TrimPrefix(got, "vmess://"), "?fragment=1,40-60,30-50")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	want := `{"v":"2","ps":"osaka-1","add":"osaka-1.example.com","port":"41234",` +
		`"id":"271d7f8c-987f-55a2-fe2e-52e1c1c39f76","aid":"0","net":"ws","type":"none",` +
		`"host":"","path":"/ws","tls":"tls","fragment":"1,40-60,30-50"}`
	assert.Equal(t, want, string(decoded))
}

func TestVlessURL(t *testing.T) {
	g := testGenerator(t)
	node := Node{
		Name:   "nagoya-1",
		Type:   "vless",
		Server: "nagoya-1.example.com",
		Port:   443,
		UUID:   "f56704ef-8060-2948-0102-47d8aee51340",
	}

	got := g.vlessURL(node)
	want := "vless://f56704ef-8060-2948-0102-47d8aee51340@nagoya-1.example.com:443?" +
		"remarks=nagoya-1&tls=1&peer=www.microsoft.com&alpn=h2%2Chttp%2F1.1" +
		"&xtls=2&pbk=pubkey123&sid=abcd1234"
	assert.Equal(t, want, got)
}

func TestShadowRocketSubscription(t *testing.T) {
	g := testGenerator(t)

	payload := g.ShadowRocketSubscription("default", "", "")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	lines := strings.Split(string(decoded), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "hysteria2://"))
	assert.True(t, strings.HasPrefix(lines[1], "vmess://"))
	assert.True(t, strings.HasPrefix(lines[2], "vless://"))
	assert.Contains(t, lines[0], "#tokyo-1")
}

func TestShadowRocketSubscription_V2Auth(t *testing.T) {
	g := testGenerator(t)

	payload := g.ShadowRocketSubscription("premium", "query-hash", "alice")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(decoded), "hysteria2://alice:query-hash@"))
	assert.Contains(t, string(decoded), ":8443?")
}

func TestSubscriptionURL(t *testing.T) {
	g := testGenerator(t)

	got := g.SubscriptionURL("https://s.example.com", "alice", "", "")
	require.True(t, strings.HasPrefix(got, "sub://"))
	require.True(t, strings.HasSuffix(got, "?udp=1&allowInsecure=1#default"))

	encoded := strings.TrimSuffix(strings.TrimPrefix(got, "sub://"), "?udp=1&allowInsecure=1#default")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "https://s.example.com/sr?u=alice", string(decoded))
}

func TestSubscriptionURL_WithSubAndHash(t *testing.T) {
	g := testGenerator(t)

	got := g.SubscriptionURL("https://s.example.com", "alice", "premium", "deadbeef")
	require.True(t, strings.HasSuffix(got, "#premium"))

	encoded := strings.TrimSuffix(strings.TrimPrefix(got, "sub://"), "?udp=1&allowInsecure=1#premium")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "https://s.example.com/sr?u=alice&sub=premium&hash=deadbeef", string(decoded))
}

func TestQRCodeBase64(t *testing.T) {
	out, err := QRCodeBase64("sub://example")
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(out)
	require.NoError(t, err)
	assert.True(t, len(decoded) > 8)
	assert.Equal(t, "\x89PNG", string(decoded[:4]))
}
