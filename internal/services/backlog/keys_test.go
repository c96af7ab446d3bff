package backlog

import (
	"regexp"
	"testing"
)

func TestIssueKeyIsDeterministic(t *testing.T) {
	first := IssueKey("image-alt", "#main > img.logo", "example.com")
	second := IssueKey("image-alt", "#main > img.logo", "example.com")
	if first != second {
		t.Fatalf("repeated derivations differ: %s vs %s", first, second)
	}
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(first) {
		t.Fatalf("key %q is not 32 lowercase hex characters", first)
	}
}

func TestIssueKeySeparatesComponents(t *testing.T) {
	base := IssueKey("image-alt", "#logo", "example.com")
	cases := map[string]string{
		"rule":     IssueKey("color-contrast", "#logo", "example.com"),
		"selector": IssueKey("image-alt", "#banner", "example.com"),
		"domain":   IssueKey("image-alt", "#logo", "other.org"),
	}
	for name, key := range cases {
		if key == base {
			t.Errorf("changing the %s must change the key", name)
		}
	}
	// Concatenation ambiguity: the separator keeps a|bc apart from ab|c.
	if IssueKey("a", "bc", "example.com") == IssueKey("ab", "c", "example.com") {
		t.Error("component boundaries must be preserved")
	}
}

func TestSourceDomain(t *testing.T) {
	cases := []struct {
		name string
		ref  string
		want string
	}{
		{"bare domain", "https://example.com", "example.com"},
		{"www stripped", "https://www.example.com/about", "example.com"},
		{"deep subdomain", "https://sub.shop.example.co.uk/cart", "example.co.uk"},
		{"case folded", "https://WWW.Example.COM/", "example.com"},
		{"localhost", "http://localhost:3000/page", "localhost"},
		{"ip literal", "http://127.0.0.1:8080/", "127.0.0.1"},
		{"file name", "report.pdf", "report.pdf"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SourceDomain(tc.ref); got != tc.want {
				t.Fatalf("SourceDomain(%q) = %q, want %q", tc.ref, got, tc.want)
			}
		})
	}
}

func TestSourceDomainUnifiesPagesOfOneSite(t *testing.T) {
	home := IssueKey("image-alt", "#logo", SourceDomain("https://example.com/"))
	about := IssueKey("image-alt", "#logo", SourceDomain("https://www.example.com/about"))
	if home != about {
		t.Fatal("the same defect on two pages of one site must share an issue key")
	}
}
