// Package processor implements RULE-SET template expansion: fetching remote
// rule lists, rewriting their entries, aggregating NETSET address lists into
// IP-CIDR blocks, and reassembling output in template line order.
package processor

import (
	"io"
	"log/slog"
	"regexp"

	"github.com/dimonb/cfgapp/internal/fetch"
)

// Parsing grammar for template directives and netset entries.
var (
	ruleSetRe = regexp.MustCompile(`(?i)^\s*RULE-SET\s*,\s*([^,\s]+)\s*,\s*([^#]+?)\s*(?:#.*)?$`)
	netsetRe  = regexp.MustCompile(`(?i)^#NETSET\s+(\S+)`)

	ipv4CIDRRe = regexp.MustCompile(`^(?:\d{1,3}\.){3}\d{1,3}/(?:[0-9]|[12][0-9]|3[0-2])$`)
	ipv6CIDRRe = regexp.MustCompile(`(?i)^([0-9a-f:]+:+)+/\d{1,3}$`)
	ipTokenRe  = regexp.MustCompile(`(?i)^IP\s+`)

	spaceBeforeCommaRe = regexp.MustCompile(`\s+,`)
	spaceAfterCommaRe  = regexp.MustCompile(`,\s+`)
	actionSuffixRe     = regexp.MustCompile(`(?i),(PROXY|DIRECT|REJECT)\s*$`)
)

// Maximum in-flight fetches per expansion level.
const maxConcurrentFetches = 8

// Options carries the aggregation and compaction settings for one processor.
type Options struct {
	IPv4BlockPrefix    int
	IPv6BlockPrefix    int
	EnableCompaction   bool
	CompactTargetMax   int
	CompactMinPrefixV4 int
	CompactMinPrefixV6 int
}

// DefaultOptions returns the stock aggregation settings.
func DefaultOptions() Options {
	return Options{
		IPv4BlockPrefix:    18,
		IPv6BlockPrefix:    32,
		EnableCompaction:   false,
		CompactTargetMax:   200,
		CompactMinPrefixV4: 11,
		CompactMinPrefixV6: 32,
	}
}

// RuleSetTask is one RULE-SET directive extracted from a template. Suffix
// keeps its leading comma so it can replace or extend a rule verbatim.
type RuleSetTask struct {
	Index  int
	URL    string
	Suffix string
}

// TemplateProcessor expands RULE-SET templates using an injected fetcher.
// All expansion state is task local, so one processor may serve concurrent
// requests.
type TemplateProcessor struct {
	fetcher fetch.Fetcher
	opts    Options
	logger  *slog.Logger
}

// NewTemplateProcessor creates a template processor. A nil logger disables
// processor logging.
func NewTemplateProcessor(fetcher fetch.Fetcher, opts Options, logger *slog.Logger) *TemplateProcessor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}
	return &TemplateProcessor{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
	}
}
