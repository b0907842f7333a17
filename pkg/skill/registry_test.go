package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSkill creates root/<id>/SKILL.md with the given content.
func writeSkill(t *testing.T, root, id, content string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocumentName), []byte(content), 0644))
}

func TestLoadAll_MissingRootIsEmpty(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "nope"))

	assert.Empty(t, r.LoadAll())
}

func TestLoadAll_SkipsDirsWithoutDocument(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo", "foo body")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))
	// Plain files at the root are not skills either.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0644))

	skills := r(root).LoadAll()
	require.Len(t, skills, 1)
	assert.Contains(t, skills, "foo")
}

func TestLoadAll_ParsesDocument(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo-helper", `---
name: Foo Helper
description: Helps with foo
keywords: Foo, bar ,baz
---
## Usage

Do foo things.
`)

	skills := r(root).LoadAll()
	require.Contains(t, skills, "foo-helper")
	s := skills["foo-helper"]

	assert.Equal(t, "Foo Helper", s.Name)
	assert.Equal(t, "Helps with foo", s.Description)
	assert.Equal(t, []string{"foo", "bar", "baz"}, s.Keywords)
	assert.Equal(t, "## Usage\n\nDo foo things.", s.Body)
}

func TestDetect_WholeWordHit(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo-helper", "---\nkeywords: foo\n---\nfoo body")

	s, ok := r(root).Detect("Please use the Foo skill")
	require.True(t, ok)
	assert.Equal(t, "foo-helper", s.ID)
}

func TestDetect_NoBoundaryNoHit(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo-helper", "---\nkeywords: foo\n---\nfoo body")

	_, ok := r(root).Detect("xfoo")
	assert.False(t, ok)
}

func TestDetect_PicksUpNewSkillWithoutRestart(t *testing.T) {
	root := t.TempDir()
	reg := r(root)

	_, ok := reg.Detect("deploy it")
	require.False(t, ok)

	writeSkill(t, root, "deploy", "deploy body")

	s, ok := reg.Detect("deploy it")
	require.True(t, ok, "registry reloads on every detection call")
	assert.Equal(t, "deploy", s.ID)
}

func TestMatches_AllKeywordOffsets(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo-helper", "---\nkeywords: foo, bar\n---\nbody")

	matches := r(root).Matches("foo then bar then FOO")
	require.Len(t, matches, 2)

	byKeyword := map[string][]int{}
	for _, m := range matches {
		byKeyword[m.Keyword] = m.Offsets
	}
	assert.Equal(t, []int{0, 18}, byKeyword["foo"], "matching is case-insensitive at this layer")
	assert.Equal(t, []int{9}, byKeyword["bar"])
}

func r(root string) *Registry { return NewRegistry(root) }
