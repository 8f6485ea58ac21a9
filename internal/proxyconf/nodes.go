package proxyconf

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/dimonb/cfgapp/internal/config"
)

// Node is one generated proxy client configuration. Password carries the
// hysteria2 credential, UUID the vmess/vless identity; only the fields
// relevant to Type are populated.
type Node struct {
	Name     string
	Type     string
	Server   string
	Port     int
	Password string
	UUID     string
}

// Generator renders Nodes, Clash proxy mappings, and subscription payloads
// for one settings set.
type Generator struct {
	conf     *Config
	settings *config.Settings
	logger   *slog.Logger
}

// NewGenerator creates a Generator. A nil logger discards all output.
func NewGenerator(conf *Config, settings *config.Settings, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}
	return &Generator{conf: conf, settings: settings, logger: logger}
}

// Nodes generates one node per proxy in the subscription. password and user
// come from the request's query parameters and may be empty, in which case
// credentials are derived from the proxy name.
func (g *Generator) Nodes(subName, password, user string) []Node {
	entries := g.conf.SubscriptionProxies(subName)
	nodes := make([]Node, 0, len(entries))

	for _, entry := range entries {
		if entry.Protocol == "" || entry.Host == "" {
			g.logger.Warn("Invalid proxy entry", "proxy", entry.Name)
			continue
		}
		node, ok := g.generateNode(entry, password, user)
		if !ok {
			g.logger.Warn("Unsupported protocol", "protocol", entry.Protocol, "proxy", entry.Name)
			continue
		}
		nodes = append(nodes, node)
	}

	g.logger.Debug("Generated proxy configurations", "count", len(nodes), "subscription", subName)
	return nodes
}

// ProxyNames lists node names in subscription order, for proxy-group
// placeholder expansion.
func (g *Generator) ProxyNames(subName, password string) []string {
	nodes := g.Nodes(subName, password, "")
	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		names = append(names, node.Name)
	}
	return names
}

// ClashProxies renders the subscription's nodes as Clash proxy mappings.
func (g *Generator) ClashProxies(subName, password, user string) []yaml.MapSlice {
	nodes := g.Nodes(subName, password, user)
	proxies := make([]yaml.MapSlice, 0, len(nodes))
	for _, node := range nodes {
		if mapping := g.ClashMapping(node); mapping != nil {
			proxies = append(proxies, mapping)
		}
	}
	return proxies
}

func (g *Generator) generateNode(entry ProxyEntry, password, user string) (Node, bool) {
	switch entry.Protocol {
	case "hy2":
		return g.hysteria2Node(entry, password, "", g.settings.Hysteria2Port), true
	case "hy2-v2":
		return g.hysteria2Node(entry, password, user, g.settings.Hysteria2V2Port), true
	case "vmess":
		return g.vmessNode(entry), true
	case "vless":
		return g.vlessNode(entry, user), true
	}
	return Node{}, false
}

func (g *Generator) hysteria2Node(entry ProxyEntry, password, user string, port int) Node {
	credential := derivePassword(entry.Name)
	if password != "" {
		credential = password
		if user != "" {
			credential = user + ":" + password
		}
	}
	return Node{
		Name:     entry.Name,
		Type:     "hysteria2",
		Server:   entry.Host,
		Port:     port,
		Password: credential,
	}
}

func (g *Generator) vmessNode(entry ProxyEntry) Node {
	return Node{
		Name:   entry.Name,
		Type:   "vmess",
		Server: entry.Host,
		Port:   derivePort(entry.Name),
		UUID:   deriveUUID(entry.Name),
	}
}

func (g *Generator) vlessNode(entry ProxyEntry, user string) Node {
	uuid := deriveUUID(entry.Name)
	if user != "" {
		uuid = UserUUID(user, g.settings.Salt)
	}
	return Node{
		Name:   entry.Name,
		Type:   "vless",
		Server: entry.Host,
		Port:   g.settings.HTTPSPort,
		UUID:   uuid,
	}
}

// ClashMapping renders the node as a Clash proxy mapping with stable key
// order.
func (g *Generator) ClashMapping(node Node) yaml.MapSlice {
	switch node.Type {
	case "hysteria2":
		return yaml.MapSlice{
			{Key: "name", Value: node.Name},
			{Key: "type", Value: "hysteria2"},
			{Key: "server", Value: node.Server},
			{Key: "port", Value: node.Port},
			{Key: "password", Value: node.Password},
			{Key: "sni", Value: "i.am.com"},
			{Key: "skip-cert-verify", Value: true},
			{Key: "alpn", Value: []string{"h3"}},
			{Key: "up", Value: 50},
			{Key: "down", Value: 200},
			{Key: "obfs", Value: "salamander"},
			{Key: "obfs-password", Value: g.settings.ObfsPassword},
			{Key: "fast-open", Value: true},
			{Key: "udp", Value: true},
		}
	case "vmess":
		return yaml.MapSlice{
			{Key: "name", Value: node.Name},
			{Key: "type", Value: "vmess"},
			{Key: "server", Value: node.Server},
			{Key: "port", Value: node.Port},
			{Key: "uuid", Value: node.UUID},
			{Key: "alterId", Value: 0},
			{Key: "cipher", Value: "auto"},
			{Key: "tls", Value: true},
			{Key: "servername", Value: node.Server},
			{Key: "skip-cert-verify", Value: true},
			{Key: "udp", Value: true},
		}
	case "vless":
		return yaml.MapSlice{
			{Key: "name", Value: node.Name},
			{Key: "type", Value: "vless"},
			{Key: "server", Value: node.Server},
			{Key: "port", Value: node.Port},
			{Key: "uuid", Value: node.UUID},
			{Key: "network", Value: "grpc"},
			{Key: "grpc-opts", Value: yaml.MapSlice{
				{Key: "grpc-service-name", Value: "grpc"},
			}},
			{Key: "security", Value: "reality"},
			{Key: "reality-opts", Value: yaml.MapSlice{
				{Key: "public-key", Value: g.settings.RealityPublicKey},
				{Key: "short-id", Value: g.settings.RealityShortID},
				{Key: "server-name", Value: "www.microsoft.com"},
			}},
			{Key: "udp", Value: true},
		}
	}
	return nil
}

// derivePassword returns the deterministic node password for a proxy name.
func derivePassword(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// derivePort maps a proxy name onto the 40000-49999 range.
func derivePort(name string) int {
	sum := md5.Sum([]byte(name + ":port"))
	value, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return 40000 + int(value%10000)
}

// deriveUUID renders md5(name + ":uuid") in canonical UUID form.
func deriveUUID(name string) string {
	sum := md5.Sum([]byte(name + ":uuid"))
	return formatUUID(hex.EncodeToString(sum[:]))
}

// UserUUID derives the vless identity a user shares with the server side.
func UserUUID(user, salt string) string {
	sum := sha256.Sum256([]byte(user + "." + salt))
	return formatUUID(hex.EncodeToString(sum[:]))
}

func formatUUID(h string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[:8], h[8:12], h[12:16], h[16:20], h[20:32])
}
