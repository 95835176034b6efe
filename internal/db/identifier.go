package db

import (
	"fmt"
	"regexp"
)

// Table and column names reach the composer as catalog data, never as code.
// Before any of them is embedded in SQL text it must pass this lexical check;
// values always travel as positional parameters.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// quotedPattern additionally admits dots, which catalog identifiers use as
// hierarchy separators. Safe only inside double quotes.
var quotedPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// SafeIdentifier validates a catalog-sourced identifier for embedding in a
// statement. Rejects anything outside the unquoted-identifier lexical class.
func SafeIdentifier(name string) (string, error) {
	if !IsSafeIdentifier(name) {
		return "", fmt.Errorf("unsafe identifier %q", name)
	}
	return name, nil
}

// QuoteIdentifier validates and double-quotes an identifier, preserving case.
func QuoteIdentifier(name string) (string, error) {
	if !quotedPattern.MatchString(name) {
		return "", fmt.Errorf("unsafe identifier %q", name)
	}
	return `"` + name + `"`, nil
}

// QualifyTable validates schema and table and returns "schema.table".
func QualifyTable(schema, table string) (string, error) {
	s, err := SafeIdentifier(schema)
	if err != nil {
		return "", fmt.Errorf("invalid schema: %w", err)
	}
	t, err := SafeIdentifier(table)
	if err != nil {
		return "", fmt.Errorf("invalid table: %w", err)
	}
	return s + "." + t, nil
}

// SafeIdentifierList validates every name in the list.
func SafeIdentifierList(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		safe, err := SafeIdentifier(name)
		if err != nil {
			return nil, err
		}
		out[i] = safe
	}
	return out, nil
}

// IsSafeIdentifier reports whether the name passes the lexical check.
func IsSafeIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
