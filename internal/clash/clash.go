// Package clash rewrites Clash YAML configuration templates. Proxy
// placeholders are replaced with generated node configurations and RULE-SET
// rule entries are expanded in place through the template engine.
package clash

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/dimonb/cfgapp/internal/processor"
	"github.com/dimonb/cfgapp/internal/proxyconf"
)

// Processor rewrites Clash configuration documents.
type Processor struct {
	engine    *processor.TemplateProcessor
	generator *proxyconf.Generator
	logger    *slog.Logger
}

// NewProcessor creates a Processor. generator may be nil when no proxy
// topology is loaded; placeholder replacement is then skipped. A nil logger
// discards all output.
func NewProcessor(engine *processor.TemplateProcessor, generator *proxyconf.Generator, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}
	return &Processor{engine: engine, generator: generator, logger: logger}
}

// Detect reports whether content is a Clash configuration document: a YAML
// mapping carrying a rules sequence.
func Detect(content string) bool {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return false
	}
	for _, item := range doc {
		if key, ok := item.Key.(string); ok && key == "rules" {
			_, isList := item.Value.([]interface{})
			return isList
		}
	}
	return false
}

// Process rewrites a Clash YAML document: proxy placeholders first, then
// RULE-SET expansion. subName, password, and user come from the request
// query parameters and may be empty. Mapping key order is preserved.
func (p *Processor) Process(ctx context.Context, yamlContent, subName, password, user string) (string, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal([]byte(yamlContent), &doc); err != nil {
		return "", fmt.Errorf("invalid Clash YAML: %w", err)
	}

	p.replacePlaceholders(doc, subName, password, user)
	p.expandRuleSets(ctx, doc)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render Clash YAML: %w", err)
	}
	return string(out), nil
}

func (p *Processor) replacePlaceholders(doc yaml.MapSlice, subName, password, user string) {
	if p.generator == nil {
		p.logger.Warn("No proxy config available, skipping proxy placeholder replacement")
		return
	}

	for i, item := range doc {
		key, ok := item.Key.(string)
		if !ok {
			continue
		}
		switch key {
		case "proxies":
			if isPlaceholder(item.Value, "PROXY_CONFIGS") {
				proxies := p.generator.ClashProxies(subName, password, user)
				doc[i].Value = proxies
				p.logger.Debug("Replaced PROXY_CONFIGS", "count", len(proxies))
			}
		case "proxy-groups":
			groups, ok := item.Value.([]interface{})
			if !ok {
				continue
			}
			for _, raw := range groups {
				group, ok := raw.(yaml.MapSlice)
				if !ok {
					continue
				}
				for j, groupItem := range group {
					gk, ok := groupItem.Key.(string)
					if ok && gk == "proxies" && isPlaceholder(groupItem.Value, "PROXY_LIST") {
						names := p.generator.ProxyNames(subName, password)
						group[j].Value = names
						p.logger.Debug("Replaced PROXY_LIST", "count", len(names))
					}
				}
			}
		}
	}
}

func (p *Processor) expandRuleSets(ctx context.Context, doc yaml.MapSlice) {
	for i, item := range doc {
		key, ok := item.Key.(string)
		if !ok || key != "rules" {
			continue
		}
		rules, ok := item.Value.([]interface{})
		if !ok {
			return
		}

		newRules := make([]interface{}, 0, len(rules))
		for _, raw := range rules {
			rule, isString := raw.(string)
			if !isString {
				newRules = append(newRules, raw)
				continue
			}
			url, group, isRuleSet := parseRuleSetEntry(rule)
			if !isRuleSet {
				newRules = append(newRules, raw)
				continue
			}
			for _, line := range p.expandRuleSet(ctx, url, group) {
				newRules = append(newRules, line)
			}
		}
		doc[i].Value = newRules
		return
	}
}

// expandRuleSet runs one RULE-SET entry through the template engine and
// strips the header comment line. A failed fetch renders only the failure
// marker, which the strip removes, so the entry expands to nothing.
func (p *Processor) expandRuleSet(ctx context.Context, url, group string) []string {
	expanded := p.engine.Process(ctx, "RULE-SET,"+url+","+group)
	lines := strings.Split(expanded, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "# RULE-SET") {
		return lines[1:]
	}
	return lines
}

// parseRuleSetEntry splits "RULE-SET,<url>,<group>" into its URL and proxy
// group. The group part may itself contain commas.
func parseRuleSetEntry(rule string) (url, group string, ok bool) {
	if !strings.HasPrefix(rule, "RULE-SET,") {
		return "", "", false
	}
	parts := strings.SplitN(rule, ",", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), true
}

func isPlaceholder(v interface{}, name string) bool {
	list, ok := v.([]interface{})
	if !ok || len(list) != 1 {
		return false
	}
	s, ok := list[0].(string)
	return ok && s == name
}
