// Package skill loads keyword-tagged skill documents and matches them
// against free-text prompts. Skills follow the .claude/skills convention:
// each immediate subdirectory of the skills root is a skill id and contains
// a SKILL.md document with optional frontmatter.
package skill

import (
	"strings"
)

// DocumentName is the conventional skill document filename.
const DocumentName = "SKILL.md"

// Skill represents a loaded skill definition.
type Skill struct {
	// ID is the unique identifier, derived from the directory name.
	ID string

	// Name is the display name (frontmatter "name", or the ID).
	Name string

	// Description explains what the skill does.
	Description string

	// Keywords are the lowercase trigger words for detection, in order.
	Keywords []string

	// Body is the document content after the frontmatter, trimmed.
	Body string

	// Meta holds the raw frontmatter key/value pairs.
	Meta map[string]string

	// Path is the document file path.
	Path string
}

// parseFrontmatter splits a skill document into a flat metadata map and the
// body text. The frontmatter is an optional leading block delimited by lines
// consisting solely of three dashes; inside it, lines matching "key: value"
// populate the map and anything else is ignored. Without frontmatter the
// whole document is the body.
func parseFrontmatter(content string) (map[string]string, string) {
	meta := make(map[string]string)

	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return meta, strings.TrimSpace(content)
	}

	endIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIdx = i
			break
		}
	}
	if endIdx == -1 {
		// Unterminated frontmatter: treat the whole document as body.
		return meta, strings.TrimSpace(content)
	}

	for _, line := range lines[1:endIdx] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		meta[key] = strings.TrimSpace(value)
	}

	body := strings.Join(lines[endIdx+1:], "\n")
	return meta, strings.TrimSpace(body)
}

// parseKeywords splits a comma-separated keywords value into lowercase
// trimmed entries, dropping empties.
func parseKeywords(value string) []string {
	var keywords []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		keywords = append(keywords, part)
	}
	return keywords
}

// newSkill builds a Skill from a parsed document. Default keywords are the
// lowercased directory id plus the frontmatter name when it differs.
func newSkill(id, path, content string) *Skill {
	meta, body := parseFrontmatter(content)

	s := &Skill{
		ID:          id,
		Name:        id,
		Description: meta["description"],
		Body:        body,
		Meta:        meta,
		Path:        path,
	}
	if name, ok := meta["name"]; ok && name != "" {
		s.Name = name
	}

	if kw, ok := meta["keywords"]; ok {
		s.Keywords = parseKeywords(kw)
		return s
	}

	s.Keywords = []string{strings.ToLower(id)}
	if name := strings.ToLower(s.Name); name != strings.ToLower(id) {
		s.Keywords = append(s.Keywords, name)
	}
	return s
}
