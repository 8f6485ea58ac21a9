package proxyconf

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// vmessPayload is the vmess link body. Field order matches what clients
// display when decoding the link.
type vmessPayload struct {
	V        string `json:"v"`
	PS       string `json:"ps"`
	Add      string `json:"add"`
	Port     string `json:"port"`
	ID       string `json:"id"`
	Aid      string `json:"aid"`
	Net      string `json:"net"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Path     string `json:"path"`
	TLS      string `json:"tls"`
	Fragment string `json:"fragment"`
}

// ShadowRocketSubscription renders every node in the subscription as a
// client URL and returns the base64-encoded payload.
func (g *Generator) ShadowRocketSubscription(subName, password, user string) string {
	nodes := g.Nodes(subName, password, user)
	urls := make([]string, 0, len(nodes))

	for _, node := range nodes {
		var link string
		switch node.Type {
		case "hysteria2":
			auth := node.Password
			if node.Port == g.settings.Hysteria2V2Port && user != "" && password != "" {
				auth = user + ":" + password
			}
			link = g.hysteria2URL(node, auth)
		case "vmess":
			link = g.vmessURL(node)
		case "vless":
			link = g.vlessURL(node)
		default:
			g.logger.Warn("Unsupported node type for ShadowRocket", "type", node.Type)
			continue
		}
		if link != "" {
			urls = append(urls, link)
		}
	}

	return base64.StdEncoding.EncodeToString([]byte(strings.Join(urls, "\n")))
}

// SubscriptionURL builds the sub:// link wrapping the /sr endpoint.
func (g *Generator) SubscriptionURL(baseURL, user, subName, password string) string {
	pairs := [][2]string{{"u", user}}
	if subName != "" {
		pairs = append(pairs, [2]string{"sub", subName})
	}
	if password != "" {
		pairs = append(pairs, [2]string{"hash", password})
	}
	srURL := baseURL + "/sr?" + queryString(pairs)
	encoded := base64.StdEncoding.EncodeToString([]byte(srURL))

	name := subName
	if name == "" {
		name = "default"
	}
	return "sub://" + encoded + "?udp=1&allowInsecure=1#" + name
}

// QRCodeBase64 renders data as a 256x256 PNG QR code and returns it base64
// encoded for inline data URLs.
func QRCodeBase64(data string) (string, error) {
	png, err := qrcode.Encode(data, qrcode.Low, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func (g *Generator) hysteria2URL(node Node, auth string) string {
	query := queryString([][2]string{
		{"peer", "i.am.com"},
		{"insecure", "1"},
		{"alpn", "h3"},
		{"obfs", "salamander"},
		{"obfs-password", g.settings.ObfsPassword},
		{"udp", "1"},
		{"fragment", "1,40-60,30-50"},
	})
	return fmt.Sprintf("hysteria2://%s@%s:%d?%s#%s", auth, node.Server, node.Port, query, node.Name)
}

func (g *Generator) vmessURL(node Node) string {
	payload := vmessPayload{
		V:        "2",
		PS:       node.Name,
		Add:      node.Server,
		Port:     strconv.Itoa(node.Port),
		ID:       node.UUID,
		Aid:      "0",
		Net:      "ws",
		Type:     "none",
		Host:     "",
		Path:     "/ws",
		TLS:      "tls",
		Fragment: "1,40-60,30-50",
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		g.logger.Warn("Failed to encode vmess payload", "proxy", node.Name, "error", err)
		return ""
	}
	encoded := base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n"))
	return "vmess://" + encoded + "?fragment=1,40-60,30-50"
}

func (g *Generator) vlessURL(node Node) string {
	query := queryString([][2]string{
		{"remarks", node.Name},
		{"tls", "1"},
		{"peer", "www.microsoft.com"},
		{"alpn", "h2,http/1.1"},
		{"xtls", "2"},
		{"pbk", g.settings.RealityPublicKey},
		{"sid", g.settings.RealityShortID},
	})
	return fmt.Sprintf("vless://%s@%s:%d?%s", node.UUID, node.Server, node.Port, query)
}

// queryString encodes pairs in the given order. url.Values sorts keys
// alphabetically, which clients parsing these links do not expect.
func queryString(pairs [][2]string) string {
	var sb strings.Builder
	for i, pair := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(pair[0]))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(pair[1]))
	}
	return sb.String()
}
