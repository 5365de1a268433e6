package cert

import (
	"reflect"
	"testing"
)

// TestMatchWildcard tests wildcard domain matching
func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		name     string
		wildcard string
		host     string
		expected bool
	}{
		{"matches first-level subdomain", "*.example.com", "a.example.com", true},
		{"matches www", "*.example.com", "www.example.com", true},
		{"does NOT match apex", "*.example.com", "example.com", false},
		{"does NOT match second-level subdomain", "*.example.com", "a.b.example.com", false},
		{"does NOT match different base", "*.example.com", "a.example.org", false},
		{"does NOT match suffix lookalike", "*.example.com", "aexample.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchWildcard(tt.wildcard, tt.host); got != tt.expected {
				t.Errorf("MatchWildcard(%q, %q) = %v, want %v", tt.wildcard, tt.host, got, tt.expected)
			}
		})
	}
}

// TestMatchDomain tests exact and wildcard matching
func TestMatchDomain(t *testing.T) {
	tests := []struct {
		name       string
		certDomain string
		host       string
		expected   bool
	}{
		{"exact", "example.com", "example.com", true},
		{"exact ignores case", "Example.COM", "example.com", true},
		{"exact ignores trailing dot", "example.com", "example.com.", true},
		{"exact mismatch", "example.com", "www.example.com", false},
		{"wildcard", "*.example.com", "api.example.com", true},
		{"wildcard ignores case", "*.example.com", "API.Example.com", true},
		{"wildcard apex", "*.example.com", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchDomain(tt.certDomain, tt.host); got != tt.expected {
				t.Errorf("MatchDomain(%q, %q) = %v, want %v", tt.certDomain, tt.host, got, tt.expected)
			}
		})
	}
}

// TestIsCoveredBy tests if a host is covered by certificate domains
func TestIsCoveredBy(t *testing.T) {
	tests := []struct {
		name        string
		host        string
		certDomains []string
		expected    bool
	}{
		{"exact match", "example.com", []string{"example.com", "www.example.com"}, true},
		{"wildcard", "a.example.com", []string{"*.example.com"}, true},
		{"apex with wildcard only", "example.com", []string{"*.example.com"}, false},
		{"second-level subdomain", "a.b.example.com", []string{"*.example.com"}, false},
		{"empty certificate", "example.com", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCoveredBy(tt.host, tt.certDomains); got != tt.expected {
				t.Errorf("IsCoveredBy(%q, %v) = %v, want %v", tt.host, tt.certDomains, got, tt.expected)
			}
		})
	}
}

// TestCalculateCoverage tests coverage calculation
func TestCalculateCoverage(t *testing.T) {
	tests := []struct {
		name        string
		certDomains []string
		hosts       []string
		status      CoverageStatus
		covered     []string
		missing     []string
	}{
		{
			name:        "wildcard misses apex",
			certDomains: []string{"*.example.com"},
			hosts:       []string{"example.com", "www.example.com"},
			status:      CoverageStatusPartial,
			covered:     []string{"www.example.com"},
			missing:     []string{"example.com"},
		},
		{
			name:        "apex plus wildcard",
			certDomains: []string{"example.com", "*.example.com"},
			hosts:       []string{"example.com", "www.example.com"},
			status:      CoverageStatusCovered,
			covered:     []string{"example.com", "www.example.com"},
		},
		{
			name:        "nothing covered",
			certDomains: []string{"example.org"},
			hosts:       []string{"example.com"},
			status:      CoverageStatusNotCovered,
			missing:     []string{"example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateCoverage(tt.certDomains, tt.hosts)
			if result.Status != tt.status {
				t.Errorf("Status = %v, want %v", result.Status, tt.status)
			}
			if !reflect.DeepEqual(result.CoveredDomains, tt.covered) {
				t.Errorf("CoveredDomains = %v, want %v", result.CoveredDomains, tt.covered)
			}
			if !reflect.DeepEqual(result.MissingDomains, tt.missing) {
				t.Errorf("MissingDomains = %v, want %v", result.MissingDomains, tt.missing)
			}
		})
	}
}
