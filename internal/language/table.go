package language

import (
	"fmt"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// Table is a read-only lookup from language id to profile. Safe for concurrent use.
type Table struct {
	profiles map[domain.Language]Profile
	order    []domain.Language
}

// NewTable builds a table from profiles. Later duplicates replace earlier ones.
func NewTable(profiles ...Profile) *Table {
	t := &Table{profiles: make(map[domain.Language]Profile, len(profiles))}
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		if _, seen := t.profiles[p.ID]; !seen {
			t.order = append(t.order, p.ID)
		}
		t.profiles[p.ID] = p
	}
	return t
}

// Lookup returns the profile for lang or an error wrapping domain.ErrUnsupportedLanguage.
func (t *Table) Lookup(lang domain.Language) (Profile, error) {
	p, ok := t.profiles[lang]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, lang)
	}
	return p, nil
}

// Profiles returns all profiles in insertion order.
func (t *Table) Profiles() []Profile {
	out := make([]Profile, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.profiles[id])
	}
	return out
}

var defaultTable = NewTable(
	Profile{
		ID:         domain.LangJava,
		SourceFile: "Main.java",
		Artifact:   "Main.class",
		BuildCmd:   "javac {src}",
		RunCmd:     "java Main",
		Version:    "17",
	},
	Profile{
		ID:         domain.LangPython,
		SourceFile: "main.py",
		RunCmd:     "python3 {src}",
		Version:    "3.12",
	},
	Profile{
		ID:         domain.LangCpp,
		SourceFile: "main.cpp",
		Artifact:   "main",
		BuildCmd:   "g++ -O2 -o {bin} {src}",
		RunCmd:     "./{bin}",
		Version:    "g++ (GCC 13)",
	},
	Profile{
		ID:         domain.LangC,
		SourceFile: "main.c",
		Artifact:   "main",
		BuildCmd:   "gcc -O2 -o {bin} {src}",
		RunCmd:     "./{bin}",
		Version:    "gcc (GCC 13)",
	},
	Profile{
		ID:         domain.LangJavaScript,
		SourceFile: "main.js",
		RunCmd:     "node {src}",
		Version:    "node 20",
	},
)

// Default returns the built-in table for the supported languages.
func Default() *Table {
	return defaultTable
}

// Lookup resolves lang against the built-in table.
func Lookup(lang domain.Language) (Profile, error) {
	return defaultTable.Lookup(lang)
}
