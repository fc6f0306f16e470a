// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"regexp"
	"strings"
)

// DefaultBaseURL is the arXiv host serving /pdf/{id} and /html/{id}.
const DefaultBaseURL = "https://arxiv.org"

// arxivPattern matches arXiv IDs: "2301.07041", "arXiv:2301.07041", "2301.07041v2".
var arxivPattern = regexp.MustCompile(`^(?:arXiv:|arxiv:)?(\d{4}\.\d{4,5}(?:v\d+)?)$`)

// NormalizeID validates an arXiv identifier and strips the optional
// "arXiv:" prefix. Identifiers double as directory names, so anything
// else is rejected.
func NormalizeID(identifier string) (string, bool) {
	m := arxivPattern.FindStringSubmatch(strings.TrimSpace(identifier))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// PDFURL returns the PDF location for id under base.
func PDFURL(base, id string) string {
	return baseOrDefault(base) + "/pdf/" + id
}

// HTMLURL returns the HTML mirror location for id under base.
func HTMLURL(base, id string) string {
	return baseOrDefault(base) + "/html/" + id
}

// AbsURL returns the abstract page for id, used for outbound links.
func AbsURL(base, id string) string {
	return baseOrDefault(base) + "/abs/" + id
}

func baseOrDefault(base string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/")
}
