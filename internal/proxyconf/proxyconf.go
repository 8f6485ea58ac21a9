// Package proxyconf loads the proxy topology file and generates
// per-protocol client configurations, ShadowRocket subscription payloads,
// and QR codes.
package proxyconf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ProxyEntry is one proxy definition inside a subscription.
type ProxyEntry struct {
	Name     string
	Protocol string
	Host     string
}

// Subscription is an ordered list of proxy entries. JSON object order is
// preserved so generated configurations keep the file's proxy order.
type Subscription struct {
	Entries []ProxyEntry
}

func (s *Subscription) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("subscription must be a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected subscription key %v", keyTok)
		}

		var details struct {
			Protocol string `json:"protocol"`
			Host     string `json:"host"`
		}
		if err := dec.Decode(&details); err != nil {
			return fmt.Errorf("proxy %q: %w", name, err)
		}

		s.Entries = append(s.Entries, ProxyEntry{
			Name:     name,
			Protocol: details.Protocol,
			Host:     details.Host,
		})
	}

	_, err = dec.Token()
	return err
}

// Config is the parsed proxy topology: the users allowed to authenticate
// and named subscriptions mapping proxy names to protocol/host pairs.
type Config struct {
	users []string
	subs  map[string]Subscription
}

// Load reads and parses the proxy configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy config %s: %w", path, err)
	}
	conf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("proxy config %s: %w", path, err)
	}
	return conf, nil
}

// Parse parses proxy configuration JSON.
func Parse(data []byte) (*Config, error) {
	var schema struct {
		Users []string                `json:"users"`
		Subs  map[string]Subscription `json:"subs"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("invalid proxy config JSON: %w", err)
	}
	return &Config{users: schema.Users, subs: schema.Subs}, nil
}

// Users returns the configured user names.
func (c *Config) Users() []string {
	return c.users
}

// Subs returns the configured subscription names in sorted order.
func (c *Config) Subs() []string {
	names := make([]string, 0, len(c.subs))
	for name := range c.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasUser reports whether name is a configured user.
func (c *Config) HasUser(name string) bool {
	for _, user := range c.users {
		if user == name {
			return true
		}
	}
	return false
}

// SubscriptionProxies returns the proxy entries for the named subscription.
// An empty or unknown name falls back to "default".
func (c *Config) SubscriptionProxies(subName string) []ProxyEntry {
	if subName == "" {
		subName = "default"
	}
	sub, ok := c.subs[subName]
	if !ok {
		sub = c.subs["default"]
	}
	return sub.Entries
}
