// Package cidr contains IPv4/IPv6 address block arithmetic for rule-list
// aggregation. It provides cover-block enumeration at a target prefix,
// overlap collapsing, and coverage-preserving network compaction used when
// raw IP lists are rewritten into routing rules.
package cidr

import (
	"fmt"
	"math/big"
	"net"
	"sort"
)

// network is a parsed CIDR block in integer form. base always has its host
// bits cleared; bits is 32 for IPv4 and 128 for IPv6.
type network struct {
	base   *big.Int
	prefix int
	bits   int
}

// size returns the number of addresses covered by the block.
func (n network) size() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(n.bits-n.prefix))
}

// lastAddr returns the highest address inside the block.
func (n network) lastAddr() *big.Int {
	last := n.size()
	last.Sub(last, big.NewInt(1))
	return last.Add(last, n.base)
}

// contains reports whether o lies entirely within n. For canonical CIDR
// blocks range containment and the subnet relation coincide.
func (n network) contains(o network) bool {
	if n.bits != o.bits {
		return false
	}
	return o.base.Cmp(n.base) >= 0 && o.lastAddr().Cmp(n.lastAddr()) <= 0
}

// String renders the block in canonical "address/prefix" notation.
func (n network) String() string {
	if n.bits == 32 {
		return fmt.Sprintf("%s/%d", uint32ToIP(uint32(n.base.Uint64())), n.prefix)
	}
	return fmt.Sprintf("%s/%d", bigIntToIPv6(n.base), n.prefix)
}

// ParseCIDR parses a CIDR of either family and returns it in canonical form
// with host bits cleared, so "192.168.1.77/24" becomes "192.168.1.0/24".
func ParseCIDR(text string) (string, error) {
	n, err := parseNetwork(text)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// parseNetwork parses a CIDR string of either family, normalizing host bits
// to the network address (a host address inside the block is accepted).
func parseNetwork(text string) (network, error) {
	_, ipNet, err := net.ParseCIDR(text)
	if err != nil {
		return network{}, fmt.Errorf("invalid CIDR %q: %w", text, err)
	}

	prefix, _ := ipNet.Mask.Size()
	if v4 := ipNet.IP.To4(); v4 != nil {
		return network{
			base:   new(big.Int).SetUint64(uint64(ipToUint32(v4))),
			prefix: prefix,
			bits:   32,
		}, nil
	}
	return network{base: ipv6ToBigInt(ipNet.IP), prefix: prefix, bits: 128}, nil
}

// Conversion helpers

// ipToUint32 converts an IPv4 address to uint32 for arithmetic operations.
func ipToUint32(ip net.IP) uint32 {
	ipv4 := ip.To4()
	if ipv4 == nil {
		return 0
	}
	return uint32(ipv4[0])<<24 | uint32(ipv4[1])<<16 | uint32(ipv4[2])<<8 | uint32(ipv4[3])
}

// uint32ToIP converts a uint32 back to an IPv4 address.
func uint32ToIP(ip uint32) net.IP {
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// ipv6ToBigInt converts an IPv6 address to big.Int for 128-bit arithmetic.
func ipv6ToBigInt(ip net.IP) *big.Int {
	ipv6 := ip.To16()
	if ipv6 == nil {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(ipv6)
}

// bigIntToIPv6 converts a big.Int back to an IPv6 address.
func bigIntToIPv6(v *big.Int) net.IP {
	b := v.Bytes()
	if len(b) < 16 {
		padded := make([]byte, 16)
		copy(padded[16-len(b):], b)
		b = padded
	}
	return net.IP(b)
}

// floorToPrefix zeroes every bit of addr beyond targetPrefix.
func floorToPrefix(addr *big.Int, targetPrefix, bits int) *big.Int {
	hostMask := new(big.Int).Lsh(big.NewInt(1), uint(bits-targetPrefix))
	hostMask.Sub(hostMask, big.NewInt(1))
	return new(big.Int).AndNot(addr, hostMask)
}

// Cover blocks

// CoverBlocksV4 returns the /targetPrefix blocks covering an IPv4 CIDR.
// The start address is floored to the target prefix and blocks are emitted
// until one contains the source block's last address. When the source is
// coarser than the target this over-covers on purpose: a /16 floored into
// /18 yields all four /18 blocks.
func CoverBlocksV4(cidr string, targetPrefix int) ([]string, error) {
	if targetPrefix < 0 || targetPrefix > 32 {
		return nil, fmt.Errorf("IPv4 target prefix out of range: %d", targetPrefix)
	}

	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid IPv4 CIDR %q: %w", cidr, err)
	}
	v4 := ipNet.IP.To4()
	if v4 == nil {
		return nil, fmt.Errorf("invalid IPv4 CIDR %q: not an IPv4 network", cidr)
	}

	prefix, _ := ipNet.Mask.Size()
	start := uint64(ipToUint32(v4))
	end := start | (uint64(1)<<(32-prefix) - 1)

	blockSize := uint64(1) << (32 - targetPrefix)
	// 64-bit cursor: a block ending at 255.255.255.255 must terminate the
	// loop instead of wrapping around the 32-bit address space.
	cursor := start &^ (blockSize - 1)

	var blocks []string
	for cursor <= end {
		blocks = append(blocks, fmt.Sprintf("%s/%d", uint32ToIP(uint32(cursor)), targetPrefix))
		cursor += blockSize
	}
	return blocks, nil
}

// CoverBlocksV6 floors an IPv6 CIDR to a single /targetPrefix block. Unlike
// the IPv4 path there is no multi-block enumeration; when the target prefix
// is finer than the source the emitted block covers only the floored start
// of the original range. The asymmetry matches the IPv4/IPv6 aggregation
// split of the rule pipeline and is relied upon by its tests.
func CoverBlocksV6(cidr string, targetPrefix int) ([]string, error) {
	if targetPrefix < 0 || targetPrefix > 128 {
		return nil, fmt.Errorf("IPv6 target prefix out of range: %d", targetPrefix)
	}

	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid IPv6 CIDR %q: %w", cidr, err)
	}
	if ipNet.IP.To4() != nil || ipNet.IP.To16() == nil {
		return nil, fmt.Errorf("invalid IPv6 CIDR %q: not an IPv6 network", cidr)
	}

	floored := floorToPrefix(ipv6ToBigInt(ipNet.IP), targetPrefix, 128)
	return []string{fmt.Sprintf("%s/%d", bigIntToIPv6(floored), targetPrefix)}, nil
}

// Overlap collapsing

// Collapse removes duplicate and fully contained blocks from a same-family
// CIDR list and merges exactly adjacent same-size siblings into their
// parent, repeating until stable. The result covers exactly the same
// address space as the input.
func Collapse(cidrs []string) ([]string, error) {
	if len(cidrs) == 0 {
		return nil, nil
	}

	nets := make([]network, 0, len(cidrs))
	for _, c := range cidrs {
		n, err := parseNetwork(c)
		if err != nil {
			return nil, err
		}
		if len(nets) > 0 && n.bits != nets[0].bits {
			return nil, fmt.Errorf("mixed address families in collapse input: %q", c)
		}
		nets = append(nets, n)
	}

	collapsed := collapseNetworks(nets)
	out := make([]string, len(collapsed))
	for i, n := range collapsed {
		out[i] = n.String()
	}
	return out, nil
}

// collapseNetworks collapses contained blocks and merges sibling pairs to a
// fixpoint. Input blocks must share one address family.
func collapseNetworks(nets []network) []network {
	for {
		merged := mergeSiblings(dropContained(nets))
		if len(merged) == len(nets) {
			return merged
		}
		nets = merged
	}
}

// dropContained sorts blocks by base address (coarser first on ties) and
// removes every block contained in an earlier one.
func dropContained(nets []network) []network {
	if len(nets) == 0 {
		return nil
	}

	sorted := make([]network, len(nets))
	copy(sorted, nets)
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].base.Cmp(sorted[j].base); c != 0 {
			return c < 0
		}
		return sorted[i].prefix < sorted[j].prefix
	})

	out := sorted[:1]
	for _, n := range sorted[1:] {
		if out[len(out)-1].contains(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// mergeSiblings merges adjacent same-prefix blocks whose union is an exact
// parent block. Expects input sorted by base address with no containment.
func mergeSiblings(nets []network) []network {
	var out []network
	for i := 0; i < len(nets); i++ {
		cur := nets[i]
		for i+1 < len(nets) && isSiblingPair(cur, nets[i+1]) {
			cur = network{base: cur.base, prefix: cur.prefix - 1, bits: cur.bits}
			i++
		}
		out = append(out, cur)
	}
	return out
}

// isSiblingPair reports whether a and b are the two halves of a common
// parent block, with a the aligned lower half.
func isSiblingPair(a, b network) bool {
	if a.prefix != b.prefix || a.prefix == 0 || a.bits != b.bits {
		return false
	}
	parentSize := new(big.Int).Lsh(big.NewInt(1), uint(a.bits-a.prefix+1))
	aligned := new(big.Int).Mod(a.base, parentSize)
	if aligned.Sign() != 0 {
		return false
	}
	expected := new(big.Int).Add(a.base, a.size())
	return expected.Cmp(b.base) == 0
}
