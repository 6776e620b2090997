package template

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// placeholderPattern matches any {{ ... }} expression.
	placeholderPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)
	identPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// reservedNames are literals to the rendering engine and cannot be used as
// variable names.
var reservedNames = map[string]bool{
	"true": true, "false": true, "nil": true, "null": true, "empty": true, "blank": true,
}

// Placeholders returns the distinct placeholder names used in text, in order
// of first appearance. It fails on any construct other than a flat name.
func Placeholders(text string) ([]string, error) {
	if strings.Contains(text, "{%") {
		return nil, fmt.Errorf("%w: tag syntax", ErrUnsupportedSyntax)
	}

	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if !identPattern.MatchString(name) || reservedNames[strings.ToLower(name)] {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedSyntax, m[0])
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	// Whatever remains after removing valid placeholders must not open or
	// close an expression.
	rest := placeholderPattern.ReplaceAllString(text, "")
	if strings.Contains(rest, "{{") || strings.Contains(rest, "}}") {
		return nil, fmt.Errorf("%w: unbalanced braces", ErrUnsupportedSyntax)
	}
	return names, nil
}

// ValidateVariables checks that every placeholder in subject and body is
// declared and that declared names are themselves valid identifiers.
func ValidateVariables(subject, body string, declared []string) error {
	decl := make(map[string]bool, len(declared))
	for _, v := range declared {
		if !identPattern.MatchString(v) || reservedNames[strings.ToLower(v)] {
			return fmt.Errorf("%w: %q", ErrInvalidVariableName, v)
		}
		decl[v] = true
	}

	for _, text := range []string{subject, body} {
		used, err := Placeholders(text)
		if err != nil {
			return err
		}
		for _, name := range used {
			if !decl[name] {
				return fmt.Errorf("%w: %s", ErrUndeclaredVariable, name)
			}
		}
	}
	return nil
}

func normalizeVariables(vars []string) []string {
	out := make([]string, 0, len(vars))
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
