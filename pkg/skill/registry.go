package skill

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/sidekick/internal/logger"
	"github.com/ternarybob/sidekick/pkg/textmatch"
)

// Registry answers "does this text mention a skill" queries against a skills
// directory. The directory is re-read on every detection call so edits take
// effect immediately; a malformed or unreadable document is skipped rather
// than failing the whole load.
type Registry struct {
	root string
}

// NewRegistry creates a registry rooted at the given skills directory.
func NewRegistry(root string) *Registry {
	return &Registry{root: root}
}

// Root returns the skills directory.
func (r *Registry) Root() string {
	return r.root
}

// LoadAll loads every skill under the root. A missing or unreadable root
// yields an empty map, not an error.
func (r *Registry) LoadAll() map[string]*Skill {
	skills := make(map[string]*Skill)

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return skills
	}

	log := logger.GetLogger()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		path := filepath.Join(r.root, id, DocumentName)
		content, err := os.ReadFile(path)
		if err != nil {
			log.Debug().Str("skill", id).Err(err).Msg("Skipping unreadable skill document")
			continue
		}

		skills[id] = newSkill(id, path, string(content))
	}

	return skills
}

// Detect returns the first skill with at least one whole-word keyword hit in
// text. Iteration order among simultaneously matching skills is unspecified.
// The text is lowercased once; keywords are stored lowercase.
func (r *Registry) Detect(text string) (*Skill, bool) {
	lowered := strings.ToLower(text)

	for _, s := range r.LoadAll() {
		for _, kw := range s.Keywords {
			if textmatch.Contains(lowered, kw) {
				return s, true
			}
		}
	}
	return nil, false
}

// Match records the whole-word occurrences of one skill keyword in a text.
type Match struct {
	Skill   *Skill
	Keyword string
	Offsets []int
}

// Matches returns every keyword occurrence across all skills, used for live
// highlighting while the user types. Offsets index into the original text.
func (r *Registry) Matches(text string) []Match {
	lowered := strings.ToLower(text)

	var matches []Match
	for _, s := range r.LoadAll() {
		for _, kw := range s.Keywords {
			offsets := textmatch.FindWholeWords(lowered, kw)
			if len(offsets) == 0 {
				continue
			}
			matches = append(matches, Match{Skill: s, Keyword: kw, Offsets: offsets})
		}
	}
	return matches
}
