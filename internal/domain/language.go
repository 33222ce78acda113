package domain

import "strings"

// Language represents a supported programming language.
type Language string

const (
	LangJava       Language = "java"
	LangPython     Language = "python"
	LangCpp        Language = "cpp"
	LangC          Language = "c"
	LangJavaScript Language = "javascript"
)

// Languages lists every supported language in display order.
var Languages = []Language{LangJava, LangPython, LangCpp, LangC, LangJavaScript}

// IsValid checks if the language is supported.
func (l Language) IsValid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLanguage normalizes user input such as "CPP" or " Python ".
// The result may still be invalid; callers check IsValid.
func ParseLanguage(s string) Language {
	return Language(strings.ToLower(strings.TrimSpace(s)))
}
