package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/dimonb/cfgapp/internal/cidr"
)

// ExpandNetset fetches a raw address list and converts it into aggregated
// IP-CIDR rules carrying suffix. Fetch failures never propagate; they are
// returned as a single inert comment line.
func (p *TemplateProcessor) ExpandNetset(ctx context.Context, url, suffix string) []string {
	p.logger.Debug("Fetching NETSET", "url", url)

	result, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		p.logger.Warn("NETSET fetch error", "url", url, "error", err)
		return []string{fmt.Sprintf("# NETSET error: %s", url)}
	}
	if !result.Success() {
		p.logger.Warn("NETSET fetch failed", "url", url, "status", result.StatusCode)
		return []string{fmt.Sprintf("# NETSET fetch failed: %s (%d)", url, result.StatusCode)}
	}

	expanded := p.expandNetsetBody(result.Body, suffix)
	p.logger.Debug("NETSET expanded", "url", url, "entries", len(expanded),
		"ipv4_prefix", p.opts.IPv4BlockPrefix, "ipv6_prefix", p.opts.IPv6BlockPrefix)
	return expanded
}

// expandNetsetBody turns fetched netset text into deduplicated IP-CIDR rules.
// Lines that match neither CIDR family are skipped; lines that match the
// family grammar but fail to parse fall through with the suffix appended so
// a single bad entry cannot abort the list.
func (p *TemplateProcessor) expandNetsetBody(text, suffix string) []string {
	var out []string

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		line = ipTokenRe.ReplaceAllString(line, "")

		if ipv6CIDRRe.MatchString(line) {
			blocks, err := cidr.CoverBlocksV6(line, p.opts.IPv6BlockPrefix)
			if err != nil {
				p.logger.Warn("IPv6 parse error", "line", line, "error", err)
				out = append(out, "IP-CIDR,"+line+suffix)
				continue
			}
			for _, block := range blocks {
				out = append(out, "IP-CIDR,"+block+suffix)
			}
			continue
		}

		if ipv4CIDRRe.MatchString(line) {
			blocks, err := cidr.CoverBlocksV4(line, p.opts.IPv4BlockPrefix)
			if err != nil {
				p.logger.Warn("IPv4 parse error", "line", line, "error", err)
				out = append(out, "IP-CIDR,"+line+suffix)
				continue
			}
			for _, block := range blocks {
				out = append(out, "IP-CIDR,"+block+suffix)
			}
		}
	}

	out = DedupeLines(out)

	if p.opts.EnableCompaction {
		out = p.applyCompaction(out, suffix)
	}

	return out
}

// applyCompaction reduces the IP-CIDR lines per address family while keeping
// any other lines untouched. Output order is other lines, then IPv4, then
// IPv6.
func (p *TemplateProcessor) applyCompaction(lines []string, suffix string) []string {
	var ipv4CIDRs, ipv6CIDRs, otherLines []string

	for _, line := range lines {
		if !strings.HasPrefix(line, "IP-CIDR,") {
			otherLines = append(otherLines, line)
			continue
		}

		entry := strings.TrimPrefix(line, "IP-CIDR,")
		if suffix != "" && strings.HasSuffix(entry, suffix) {
			entry = strings.TrimSuffix(entry, suffix)
		}

		switch {
		case ipv4CIDRRe.MatchString(entry):
			ipv4CIDRs = append(ipv4CIDRs, entry)
		case ipv6CIDRRe.MatchString(entry):
			ipv6CIDRs = append(ipv6CIDRs, entry)
		default:
			otherLines = append(otherLines, line)
		}
	}

	out := make([]string, 0, len(lines))
	out = append(out, otherLines...)

	if len(ipv4CIDRs) > 0 {
		compacted, err := cidr.CompactIPv4Networks(ipv4CIDRs, p.opts.CompactTargetMax, p.opts.CompactMinPrefixV4)
		if err != nil {
			p.logger.Warn("IPv4 compaction failed", "error", err)
			compacted = ipv4CIDRs
		}
		for _, block := range compacted {
			out = append(out, "IP-CIDR,"+block+suffix)
		}
	}

	if len(ipv6CIDRs) > 0 {
		compacted, err := cidr.CompactIPv6Networks(ipv6CIDRs, p.opts.CompactTargetMax, p.opts.CompactMinPrefixV6)
		if err != nil {
			p.logger.Warn("IPv6 compaction failed", "error", err)
			compacted = ipv6CIDRs
		}
		for _, block := range compacted {
			out = append(out, "IP-CIDR,"+block+suffix)
		}
	}

	return out
}
