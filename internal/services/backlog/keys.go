package backlog

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// IssueKey derives the global, deterministic identity of a backlog item.
// Re-scanning the same target reproduces the same key byte for byte, which is
// what makes backlog reconciliation idempotent.
func IssueKey(ruleID, primarySelector, sourceDomain string) string {
	sum := sha256.Sum256([]byte(ruleID + "|" + primarySelector + "|" + sourceDomain))
	return hex.EncodeToString(sum[:16])
}

// SourceDomain normalizes a source reference for key derivation: the
// registrable domain for URLs, so www.example.com and example.com produce one
// ticket for the same defect. Hosts outside the public-suffix list (localhost,
// IPs) fall back to the bare host; non-URL references (file names) pass
// through unchanged.
func SourceDomain(sourceRef string) string {
	u, err := url.Parse(sourceRef)
	if err != nil || u.Host == "" {
		return sourceRef
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}
