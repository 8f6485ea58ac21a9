package cidr

import (
	"fmt"
	"math/big"
	"sort"
)

// compactThresholds is the ascending merge-cost ladder, in addresses. Each
// pass may only merge a pair when the supernet adds at most the current
// threshold of extra coverage, so cheap merges happen before wasteful ones.
var compactThresholds = []int64{1 << 20, 1 << 21, 1 << 22, 1 << 23, 1 << 24}

// CompactIPv4Networks reduces an IPv4 CIDR list to at most targetMax blocks
// while keeping every input block covered by some output block. minPrefix
// caps the size of any merged block (11 means nothing coarser than /11 is
// ever emitted); when it prevents reaching targetMax the result is larger
// than requested but still fully covering.
func CompactIPv4Networks(cidrs []string, targetMax, minPrefix int) ([]string, error) {
	nets, err := parseFamily(cidrs, 32)
	if err != nil {
		return nil, err
	}
	return renderNetworks(compactNetworks(nets, targetMax, minPrefix)), nil
}

// CompactIPv6Networks is the IPv6 counterpart of CompactIPv4Networks.
func CompactIPv6Networks(cidrs []string, targetMax, minPrefix int) ([]string, error) {
	nets, err := parseFamily(cidrs, 128)
	if err != nil {
		return nil, err
	}
	return renderNetworks(compactNetworks(nets, targetMax, minPrefix)), nil
}

// compactNetworks collapses the input and then merges adjacent pairs under
// the increasing cost thresholds until the count reaches targetMax or the
// ladder is exhausted.
func compactNetworks(nets []network, targetMax, minPrefix int) []network {
	nets = collapseNetworks(nets)
	if len(nets) <= targetMax {
		return nets
	}

	for _, threshold := range compactThresholds {
		limit := big.NewInt(threshold)
		changed := true

		for changed && len(nets) > targetMax {
			changed = false
			sort.Slice(nets, func(i, j int) bool {
				return nets[i].base.Cmp(nets[j].base) < 0
			})

			for i := 0; i < len(nets)-1 && len(nets) > targetMax; {
				supernet, ok := findMinimalSupernet([]network{nets[i], nets[i+1]}, minPrefix)
				if !ok {
					i++
					continue
				}

				cost := supernet.size()
				cost.Sub(cost, nets[i].size())
				cost.Sub(cost, nets[i+1].size())
				if cost.Cmp(limit) > 0 {
					i++
					continue
				}

				merged := make([]network, 0, len(nets)-1)
				merged = append(merged, nets[:i]...)
				merged = append(merged, supernet)
				merged = append(merged, nets[i+2:]...)
				nets = collapseNetworks(merged)
				changed = true
				// Keep i in place so the merged block is tried against its
				// new neighbor.
			}
		}

		if len(nets) <= targetMax {
			break
		}
	}
	return nets
}

// findMinimalSupernet scans prefix lengths from minPrefix (the least
// specific allowed) toward the address width and returns the first block
// that is floored at the group's lowest address, reaches its highest
// address, and contains every member. It fails only when the group
// straddles a minPrefix-sized boundary.
func findMinimalSupernet(nets []network, minPrefix int) (network, bool) {
	if len(nets) == 0 {
		return network{}, false
	}
	if minPrefix < 0 {
		minPrefix = 0
	}

	bits := nets[0].bits
	minAddr := nets[0].base
	maxAddr := nets[0].lastAddr()
	for _, n := range nets[1:] {
		if n.base.Cmp(minAddr) < 0 {
			minAddr = n.base
		}
		if last := n.lastAddr(); last.Cmp(maxAddr) > 0 {
			maxAddr = last
		}
	}

	for prefixLen := minPrefix; prefixLen <= bits; prefixLen++ {
		candidate := network{
			base:   floorToPrefix(minAddr, prefixLen, bits),
			prefix: prefixLen,
			bits:   bits,
		}
		if candidate.lastAddr().Cmp(maxAddr) < 0 {
			continue
		}

		covered := true
		for _, n := range nets {
			if !candidate.contains(n) {
				covered = false
				break
			}
		}
		if covered {
			return candidate, true
		}
	}
	return network{}, false
}

// VerifyCoverage checks that every original block is a subnet of, or equal
// to, some compacted block. It returns the blocks left uncovered; an entry
// that fails to parse counts as uncovered. This is the correctness oracle
// for compaction, used by tests rather than the processing path.
func VerifyCoverage(originalCIDRs, compactedCIDRs []string) (bool, []string) {
	compacted := make([]network, 0, len(compactedCIDRs))
	for _, c := range compactedCIDRs {
		n, err := parseNetwork(c)
		if err != nil {
			continue
		}
		compacted = append(compacted, n)
	}

	var uncovered []string
	for _, c := range originalCIDRs {
		orig, err := parseNetwork(c)
		if err != nil {
			uncovered = append(uncovered, c)
			continue
		}
		covered := false
		for _, comp := range compacted {
			if comp.contains(orig) {
				covered = true
				break
			}
		}
		if !covered {
			uncovered = append(uncovered, c)
		}
	}
	return len(uncovered) == 0, uncovered
}

// parseFamily parses a CIDR list and requires every entry to belong to the
// given family (32 or 128 bits).
func parseFamily(cidrs []string, bits int) ([]network, error) {
	family := "IPv4"
	if bits == 128 {
		family = "IPv6"
	}

	nets := make([]network, 0, len(cidrs))
	for _, c := range cidrs {
		n, err := parseNetwork(c)
		if err != nil {
			return nil, err
		}
		if n.bits != bits {
			return nil, fmt.Errorf("invalid %s CIDR %q: wrong address family", family, c)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// renderNetworks renders blocks back to canonical CIDR strings.
func renderNetworks(nets []network) []string {
	out := make([]string, len(nets))
	for i, n := range nets {
		out[i] = n.String()
	}
	return out
}
