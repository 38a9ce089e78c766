// Package importer loads folders of Markdown notes (plain or Obsidian vaults)
// into an agent's memory, one document per file.
package importer

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/memora/pkg/types"
)

// ParsedFile is a Markdown file split into facts.
type ParsedFile struct {
	// RelativePath is slash-separated and relative to the import root. It is
	// the document id, so re-importing a file replaces its facts.
	RelativePath string

	// Title comes from frontmatter, the first H1, or the file name.
	Title string

	Frontmatter map[string]any
	Tags        []string
	WikiLinks   []WikiLink

	// Timestamp is the frontmatter date, or zero.
	Timestamp time.Time

	// FactType is the frontmatter fact_type, or empty for the default.
	FactType types.FactType

	Sections []Section
}

// Section is a run of facts under one heading.
type Section struct {
	Heading string
	Facts   []string
}

// ParseMarkdownFile parses one file's content.
func ParseMarkdownFile(content []byte, relativePath string) (*ParsedFile, error) {
	rel := filepath.ToSlash(relativePath)
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("frontmatter parse error in %s: %w", rel, err)
	}

	title := extractString(fm, "title")
	if title == "" {
		title = extractH1(body)
	}
	if title == "" {
		title = titleFromPath(rel)
	}

	return &ParsedFile{
		RelativePath: rel,
		Title:        title,
		Frontmatter:  fm,
		Tags:         mergeTags(extractTags(fm), extractInlineTags(body)),
		WikiLinks:    ExtractWikiLinks(body),
		Timestamp:    extractTimestamp(fm),
		FactType:     types.FactType(extractString(fm, "fact_type")),
		Sections:     splitSections(StripWikiLinks(body)),
	}, nil
}

// Items converts the file into ingest items: one per paragraph or list entry,
// with the title and section heading as context.
func (pf *ParsedFile) Items() []types.IngestItem {
	meta := map[string]string{
		"source": "markdown-import",
		"path":   pf.RelativePath,
		"title":  pf.Title,
	}
	if len(pf.Tags) > 0 {
		meta["tags"] = strings.Join(pf.Tags, ",")
	}
	if len(pf.WikiLinks) > 0 {
		targets := make([]string, len(pf.WikiLinks))
		for i, wl := range pf.WikiLinks {
			targets[i] = wl.Target
		}
		meta["wiki_links"] = strings.Join(targets, ",")
	}

	var eventDate *time.Time
	if !pf.Timestamp.IsZero() {
		ts := pf.Timestamp
		eventDate = &ts
	}

	var items []types.IngestItem
	for _, sec := range pf.Sections {
		context := pf.Title
		if sec.Heading != "" && sec.Heading != pf.Title {
			context += " / " + sec.Heading
		}
		for _, fact := range sec.Facts {
			items = append(items, types.IngestItem{
				Content:   fact,
				Context:   context,
				FactType:  pf.FactType,
				EventDate: eventDate,
				Metadata:  maps.Clone(meta),
			})
		}
	}
	return items
}

var (
	headingRe  = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	listItemRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(?:\[[ xX]\]\s+)?(.*)$`)
)

// splitSections groups paragraphs and list entries under their nearest
// heading. Fenced code blocks are skipped.
func splitSections(body string) []Section {
	var sections []Section
	cur := Section{}
	var para []string
	inFence := false

	flush := func() {
		if text := strings.TrimSpace(strings.Join(para, " ")); text != "" {
			cur.Facts = append(cur.Facts, text)
		}
		para = para[:0]
	}
	closeSection := func() {
		flush()
		if len(cur.Facts) > 0 {
			sections = append(sections, cur)
		}
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			flush()
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		switch {
		case trimmed == "":
			flush()
		case headingRe.MatchString(trimmed):
			closeSection()
			cur = Section{Heading: strings.TrimSpace(headingRe.FindStringSubmatch(trimmed)[1])}
		case listItemRe.MatchString(line):
			flush()
			if item := strings.TrimSpace(listItemRe.FindStringSubmatch(line)[1]); item != "" {
				cur.Facts = append(cur.Facts, item)
			}
		default:
			para = append(para, trimmed)
		}
	}
	closeSection()
	return sections
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the body. Without frontmatter it returns an empty map and the full text.
func splitFrontmatter(text string) (map[string]any, string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]any{}, text, nil
	}
	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return map[string]any{}, text, nil
	}

	fm := make(map[string]any)
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return nil, "", fmt.Errorf("invalid YAML: %w", err)
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// titleFromPath derives a title from the file name.
func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.TrimSpace(name)
}

func extractH1(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// extractTags reads frontmatter tags in list or comma-separated form.
func extractTags(fm map[string]any) []string {
	var tags []string
	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
	case string:
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// extractTimestamp reads the first parseable date field from frontmatter.
func extractTimestamp(fm map[string]any) time.Time {
	for _, key := range []string{"date", "created", "created_at"} {
		raw, ok := fm[key]
		if !ok {
			continue
		}
		if t, ok := raw.(time.Time); ok {
			return t
		}
		s := strings.TrimSpace(fmt.Sprint(raw))
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func extractString(fm map[string]any, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

var inlineTagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

func extractInlineTags(body string) []string {
	var tags []string
	for _, m := range inlineTagRe.FindAllStringSubmatch(body, -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// mergeTags concatenates tag lists, deduplicating case-insensitively.
func mergeTags(a, b []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, tag := range append(a, b...) {
		lower := strings.ToLower(tag)
		if !seen[lower] {
			seen[lower] = true
			result = append(result, tag)
		}
	}
	return result
}
