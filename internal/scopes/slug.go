package scopes

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/metrogrid/cityql/internal/domain"
)

// accentFold maps the accented letters common in scope display names onto
// their ASCII base so slugs stay valid schema identifiers.
var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'ä': 'a', 'â': 'a', 'ã': 'a',
	'é': 'e', 'è': 'e', 'ë': 'e', 'ê': 'e',
	'í': 'i', 'ì': 'i', 'ï': 'i', 'î': 'i',
	'ó': 'o', 'ò': 'o', 'ö': 'o', 'ô': 'o', 'õ': 'o',
	'ú': 'u', 'ù': 'u', 'ü': 'u', 'û': 'u',
	'ñ': 'n', 'ç': 'c',
}

// slugify derives a schema-safe identifier from a display name: lowercase,
// spaces and hyphens removed, accents folded, anything else outside
// [a-z0-9_] dropped. A name yielding nothing falls back to "scope".
func slugify(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if folded, ok := accentFold[r]; ok {
			r = folded
		}
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r), r == '_':
			sb.WriteRune(r)
		}
	}
	slug := sb.String()
	if slug == "" {
		return "scope"
	}
	if slug[0] >= '0' && slug[0] <= '9' {
		slug = "s" + slug
	}
	return slug
}

// uniqueSlug probes the existing scopes for schema collisions, appending a
// numeric suffix until the proposed identifier is free. Identifier and schema
// share the value.
func uniqueSlug(name string, existing []domain.Scope) string {
	taken := make(map[string]bool, len(existing))
	for _, s := range existing {
		taken[s.Schema] = true
		taken[s.ID] = true
	}

	base := slugify(name)
	proposed := base
	for suffix := 1; taken[proposed]; suffix++ {
		proposed = fmt.Sprintf("%s_%d", base, suffix)
	}
	return proposed
}
