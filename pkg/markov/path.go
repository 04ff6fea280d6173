package markov

import (
	"regexp"
	"strings"
)

var (
	numericSegmentRe = regexp.MustCompile(`^\d+$`)
	uuidSegmentRe    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	extensionRe      = regexp.MustCompile(`\.[a-zA-Z0-9]{1,8}$`)
	slashesRe        = regexp.MustCompile(`/+`)
)

// ClassRule maps a normalized-path regex to a path class label. Checked in
// order; first match wins.
type ClassRule struct {
	pattern *regexp.Regexp
	class   string
}

// DefaultClassTable is the configurable regex table from the path
// classification rules. Hosts may supply their own via NewClassifier.
var DefaultClassTable = []ClassRule{
	{regexp.MustCompile(`^/api/v\d+/users/\{id\}$`), "api-users-detail"},
	{regexp.MustCompile(`^/api/v\d+/users$`), "api-users-list"},
	{regexp.MustCompile(`^/api/v\d+/.*/\{id\}$`), "api-resource-detail"},
	{regexp.MustCompile(`^/api/v\d+/`), "api-other"},
	{regexp.MustCompile(`^/static/`), "static-asset"},
	{regexp.MustCompile(`^/\.well-known/`), "well-known"},
	{regexp.MustCompile(`^/$`), "root"},
}

// NormalizePath strips the query/fragment, lowercases, collapses repeated
// slashes, replaces numeric and UUID segments with "{id}", and replaces a
// trailing file extension with "{ext}". It is idempotent.
func NormalizePath(raw string) string {
	path := raw
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)
	path = slashesRe.ReplaceAllString(path, "/")
	if path == "" {
		path = "/"
	}

	if m := extensionRe.FindString(path); m != "" && m != path {
		path = strings.TrimSuffix(path, m) + "{ext}"
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if numericSegmentRe.MatchString(seg) || uuidSegmentRe.MatchString(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// NewClassRule builds a ClassRule for use in a custom class table.
func NewClassRule(pattern *regexp.Regexp, class string) ClassRule {
	return ClassRule{pattern: pattern, class: class}
}

// Classifier maps a normalized path to a path class using a regex table.
type Classifier struct {
	rules []ClassRule
}

// NewClassifier builds a Classifier from a regex->class table, falling back
// to DefaultClassTable if table is empty.
func NewClassifier(table []ClassRule) *Classifier {
	if len(table) == 0 {
		table = DefaultClassTable
	}
	return &Classifier{rules: table}
}

// DefaultClassifier returns a Classifier over DefaultClassTable.
func DefaultClassifier() *Classifier {
	return NewClassifier(nil)
}

// Classify maps a normalized path to its equivalence class, or "unclassified"
// if nothing in the table matches.
func (c *Classifier) Classify(normalizedPath string) string {
	for _, rule := range c.rules {
		if rule.pattern.MatchString(normalizedPath) {
			return rule.class
		}
	}
	return "unclassified"
}
