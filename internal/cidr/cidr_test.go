package cidr

import (
	"reflect"
	"testing"
)

func TestParseCIDR(t *testing.T) {
	tests := []struct {
		name     string
		cidr     string
		expected string
	}{
		{name: "Canonical IPv4 unchanged", cidr: "192.168.1.0/24", expected: "192.168.1.0/24"},
		{name: "IPv4 host bits cleared", cidr: "192.168.1.77/24", expected: "192.168.1.0/24"},
		{name: "Canonical IPv6 unchanged", cidr: "2001:db8::/48", expected: "2001:db8::/48"},
		{name: "IPv6 host bits cleared", cidr: "2001:db8::beef/32", expected: "2001:db8::/32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseCIDR(tt.cidr)
			if err != nil {
				t.Fatalf("ParseCIDR(%q) returned error: %v", tt.cidr, err)
			}
			if result != tt.expected {
				t.Errorf("ParseCIDR(%q) = %q, expected %q", tt.cidr, result, tt.expected)
			}
		})
	}

	for _, invalid := range []string{"", "not-a-cidr", "192.168.0.0", "10.0.0.0/33"} {
		if _, err := ParseCIDR(invalid); err == nil {
			t.Errorf("ParseCIDR(%q) expected error, got none", invalid)
		}
	}
}

func TestCoverBlocksV4(t *testing.T) {
	tests := []struct {
		name         string
		cidr         string
		targetPrefix int
		expected     []string
	}{
		{
			name:         "Finer source floors to single block",
			cidr:         "192.168.1.0/24",
			targetPrefix: 18,
			expected:     []string{"192.168.0.0/18"},
		},
		{
			name:         "Coarser source enumerates all target blocks",
			cidr:         "192.168.0.0/16",
			targetPrefix: 18,
			expected:     []string{"192.168.0.0/18", "192.168.64.0/18", "192.168.128.0/18", "192.168.192.0/18"},
		},
		{
			name:         "Equal prefix returns the block itself",
			cidr:         "10.128.0.0/18",
			targetPrefix: 18,
			expected:     []string{"10.128.0.0/18"},
		},
		{
			name:         "Host bits are normalized away",
			cidr:         "192.168.1.57/24",
			targetPrefix: 18,
			expected:     []string{"192.168.0.0/18"},
		},
		{
			name:         "Single host address",
			cidr:         "203.0.113.7/32",
			targetPrefix: 24,
			expected:     []string{"203.0.113.0/24"},
		},
		{
			name:         "Top of address space terminates",
			cidr:         "255.255.255.0/24",
			targetPrefix: 18,
			expected:     []string{"255.255.192.0/18"},
		},
		{
			name:         "Top of address space with coarse source",
			cidr:         "255.255.0.0/16",
			targetPrefix: 17,
			expected:     []string{"255.255.0.0/17", "255.255.128.0/17"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CoverBlocksV4(tt.cidr, tt.targetPrefix)
			if err != nil {
				t.Fatalf("CoverBlocksV4(%q, %d) returned error: %v", tt.cidr, tt.targetPrefix, err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("CoverBlocksV4(%q, %d) = %v, expected %v", tt.cidr, tt.targetPrefix, result, tt.expected)
			}
		})
	}
}

func TestCoverBlocksV4Invalid(t *testing.T) {
	invalid := []string{"not-a-cidr", "300.1.2.3/24", "192.168.0.0", "2001:db8::/32"}
	for _, cidr := range invalid {
		if _, err := CoverBlocksV4(cidr, 18); err == nil {
			t.Errorf("CoverBlocksV4(%q, 18) expected error, got none", cidr)
		}
	}
	if _, err := CoverBlocksV4("192.168.0.0/16", 33); err == nil {
		t.Errorf("CoverBlocksV4 with prefix 33 expected error, got none")
	}
}

func TestCoverBlocksV6(t *testing.T) {
	tests := []struct {
		name         string
		cidr         string
		targetPrefix int
		expected     []string
	}{
		{
			name:         "Finer source floors to single block",
			cidr:         "2001:db8::/48",
			targetPrefix: 32,
			expected:     []string{"2001:db8::/32"},
		},
		{
			name:         "Equal prefix returns the block itself",
			cidr:         "2001:db8::/32",
			targetPrefix: 32,
			expected:     []string{"2001:db8::/32"},
		},
		{
			name:         "Host bits are normalized away",
			cidr:         "2001:db8:1:2::3/64",
			targetPrefix: 32,
			expected:     []string{"2001:db8::/32"},
		},
		{
			name:         "Coarser source still yields one floored block",
			cidr:         "2001::/16",
			targetPrefix: 32,
			expected:     []string{"2001::/32"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CoverBlocksV6(tt.cidr, tt.targetPrefix)
			if err != nil {
				t.Fatalf("CoverBlocksV6(%q, %d) returned error: %v", tt.cidr, tt.targetPrefix, err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("CoverBlocksV6(%q, %d) = %v, expected %v", tt.cidr, tt.targetPrefix, result, tt.expected)
			}
		})
	}
}

func TestCoverBlocksV6Invalid(t *testing.T) {
	invalid := []string{"not-a-cidr", "192.168.0.0/24", "2001:db8::"}
	for _, cidr := range invalid {
		if _, err := CoverBlocksV6(cidr, 32); err == nil {
			t.Errorf("CoverBlocksV6(%q, 32) expected error, got none", cidr)
		}
	}
	if _, err := CoverBlocksV6("2001:db8::/32", 129); err == nil {
		t.Errorf("CoverBlocksV6 with prefix 129 expected error, got none")
	}
}

func TestCollapse(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "Empty input",
			input:    []string{},
			expected: nil,
		},
		{
			name:     "Duplicates removed",
			input:    []string{"10.0.0.0/24", "10.0.0.0/24"},
			expected: []string{"10.0.0.0/24"},
		},
		{
			name:     "Contained block removed",
			input:    []string{"10.0.0.0/16", "10.0.5.0/24"},
			expected: []string{"10.0.0.0/16"},
		},
		{
			name:     "Adjacent siblings merge into parent",
			input:    []string{"192.168.0.0/24", "192.168.1.0/24"},
			expected: []string{"192.168.0.0/23"},
		},
		{
			name:     "Sibling merge cascades",
			input:    []string{"192.168.0.0/25", "192.168.0.128/25", "192.168.1.0/24"},
			expected: []string{"192.168.0.0/23"},
		},
		{
			name:     "Adjacent but unaligned blocks stay separate",
			input:    []string{"192.168.1.0/24", "192.168.2.0/24"},
			expected: []string{"192.168.1.0/24", "192.168.2.0/24"},
		},
		{
			name:     "Disjoint blocks are sorted, not merged",
			input:    []string{"172.16.0.0/24", "10.0.0.0/24"},
			expected: []string{"10.0.0.0/24", "172.16.0.0/24"},
		},
		{
			name:     "IPv6 siblings merge",
			input:    []string{"2001:db8::/33", "2001:db8:8000::/33"},
			expected: []string{"2001:db8::/32"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Collapse(tt.input)
			if err != nil {
				t.Fatalf("Collapse(%v) returned error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Collapse(%v) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCollapseMixedFamilies(t *testing.T) {
	if _, err := Collapse([]string{"10.0.0.0/24", "2001:db8::/32"}); err == nil {
		t.Errorf("Collapse with mixed families expected error, got none")
	}
}
