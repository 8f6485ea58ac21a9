package processor

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ExpandRuleSet fetches the rule list behind one RULE-SET directive and
// rewrites every rule with the task's suffix. When the body carries
// #NETSET markers the body is treated as an address-list index instead:
// the referenced netsets are expanded concurrently and plain rule lines
// are ignored. Failures collapse to a single comment line.
func (p *TemplateProcessor) ExpandRuleSet(ctx context.Context, task RuleSetTask) []string {
	p.logger.Debug("Expanding RULE-SET", "url", task.URL, "suffix", task.Suffix)

	result, err := p.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		p.logger.Warn("RULE-SET fetch error", "url", task.URL, "error", err)
		return []string{"# RULE-SET fetch failed: " + task.URL}
	}
	if !result.Success() {
		p.logger.Warn("RULE-SET fetch failed", "url", task.URL, "status", result.StatusCode)
		return []string{"# RULE-SET fetch failed: " + task.URL}
	}

	lines := strings.Split(result.Body, "\n")

	var netsetURLs []string
	for _, line := range lines {
		if match := netsetRe.FindStringSubmatch(strings.TrimSpace(line)); match != nil {
			netsetURLs = append(netsetURLs, match[1])
		}
	}

	output := []string{"# RULE-SET," + task.URL}

	if len(netsetURLs) > 0 {
		p.logger.Debug("Found NETSET entries", "url", task.URL, "count", len(netsetURLs))
		output = append(output, p.expandNetsets(ctx, netsetURLs, task.Suffix)...)
		return DedupeLines(output)
	}

	for _, raw := range lines {
		rule, ok := rewriteRule(raw, task.Suffix)
		if !ok {
			continue
		}
		output = append(output, rule)
	}

	return DedupeLines(output)
}

// expandNetsets fans out one netset expansion per URL and flattens the
// results in marker order regardless of fetch completion order.
func (p *TemplateProcessor) expandNetsets(ctx context.Context, urls []string, suffix string) []string {
	results := make([][]string, len(urls))
	sem := semaphore.NewWeighted(maxConcurrentFetches)
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(slot int, u string) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[slot] = []string{"# NETSET error: " + u}
				return
			}
			defer sem.Release(1)

			results[slot] = p.ExpandNetset(ctx, u, suffix)
		}(i, url)
	}
	wg.Wait()

	var flat []string
	for _, lines := range results {
		flat = append(flat, lines...)
	}
	return flat
}

// rewriteRule turns one raw rule-list line into an output rule. It reports
// false for lines that produce no output, i.e. blanks and comments. A
// trailing PROXY, DIRECT, or REJECT action is replaced by the suffix;
// otherwise the suffix is appended.
func rewriteRule(raw, suffix string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}

	if pos := strings.Index(trimmed, "#"); pos != -1 {
		trimmed = strings.TrimSpace(trimmed[:pos])
	}
	if trimmed == "" {
		return "", false
	}

	trimmed = spaceBeforeCommaRe.ReplaceAllString(trimmed, ",")
	trimmed = spaceAfterCommaRe.ReplaceAllString(trimmed, ",")

	if actionSuffixRe.MatchString(trimmed) {
		return actionSuffixRe.ReplaceAllLiteralString(trimmed, suffix), true
	}
	return trimmed + suffix, true
}
