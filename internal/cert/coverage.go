package cert

import "strings"

// CoverageStatus tells how much of a host set a certificate serves
type CoverageStatus string

const (
	CoverageStatusCovered    CoverageStatus = "covered"
	CoverageStatusPartial    CoverageStatus = "partial"
	CoverageStatusNotCovered CoverageStatus = "not_covered"
)

// CoverageResult is the coverage of one certificate over a host set
type CoverageResult struct {
	Status         CoverageStatus `json:"status"`
	MissingDomains []string       `json:"missing_domains,omitempty"`
	CoveredDomains []string       `json:"covered_domains,omitempty"`
}

// CalculateCoverage splits hosts into the ones certDomains serve and the rest
func CalculateCoverage(certDomains, hosts []string) CoverageResult {
	var covered, missing []string
	for _, host := range hosts {
		if IsCoveredBy(host, certDomains) {
			covered = append(covered, host)
		} else {
			missing = append(missing, host)
		}
	}

	switch {
	case len(missing) == 0:
		return CoverageResult{Status: CoverageStatusCovered, CoveredDomains: covered}
	case len(covered) > 0:
		return CoverageResult{Status: CoverageStatusPartial, CoveredDomains: covered, MissingDomains: missing}
	default:
		return CoverageResult{Status: CoverageStatusNotCovered, MissingDomains: missing}
	}
}

// IsCoveredBy reports whether any of certDomains serves host
func IsCoveredBy(host string, certDomains []string) bool {
	for _, certDomain := range certDomains {
		if MatchDomain(certDomain, host) {
			return true
		}
	}
	return false
}

// MatchDomain matches a SAN entry against a host, exact or wildcard,
// ignoring case and a trailing dot.
func MatchDomain(certDomain, host string) bool {
	certDomain = strings.TrimSuffix(strings.ToLower(certDomain), ".")
	host = strings.TrimSuffix(strings.ToLower(host), ".")

	if certDomain == host {
		return true
	}
	if strings.HasPrefix(certDomain, "*.") {
		return MatchWildcard(certDomain, host)
	}
	return false
}

// MatchWildcard applies RFC 6125 wildcard rules: *.example.com matches
// exactly one label, never the apex and never a.b.example.com.
func MatchWildcard(wildcardDomain, host string) bool {
	base := strings.TrimPrefix(wildcardDomain, "*.")
	if !strings.HasSuffix(host, "."+base) {
		return false
	}
	label := strings.TrimSuffix(host, "."+base)
	return label != "" && !strings.Contains(label, ".")
}
