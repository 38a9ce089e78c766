package importer

import (
	"regexp"
	"strings"
)

// wikilinkRe matches [[link]] and [[link|alias]] patterns.
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// WikiLink is a parsed [[wiki-link]].
type WikiLink struct {
	Target string
	Alias  string // display text of [[target|alias]]; empty otherwise
}

// ExtractWikiLinks returns the links in content, deduplicated by target
// (case-insensitive) and ordered by first appearance.
func ExtractWikiLinks(content string) []WikiLink {
	seen := make(map[string]bool)
	var links []WikiLink
	for _, m := range wikilinkRe.FindAllStringSubmatch(content, -1) {
		target := strings.TrimSpace(m[1])
		key := strings.ToLower(target)
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, WikiLink{Target: target, Alias: strings.TrimSpace(m[2])})
	}
	return links
}

// StripWikiLinks replaces [[wiki-links]] with their target name. The
// target, not the alias, is kept so entity extraction sees the linked name.
func StripWikiLinks(content string) string {
	return wikilinkRe.ReplaceAllStringFunc(content, func(match string) string {
		parts := wikilinkRe.FindStringSubmatch(match)
		return strings.TrimSpace(parts[1])
	})
}
