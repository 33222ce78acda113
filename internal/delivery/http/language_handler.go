package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/language"
)

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Name     domain.Language `json:"name"`
	Version  string          `json:"version"`
	Compiled bool            `json:"compiled"`
}

// LanguageHandler handles language listing requests.
type LanguageHandler struct {
	table *language.Table
}

// NewLanguageHandler creates a LanguageHandler over table.
func NewLanguageHandler(table *language.Table) *LanguageHandler {
	return &LanguageHandler{table: table}
}

// List handles GET /api/v1/languages
func (h *LanguageHandler) List(c *gin.Context) {
	profiles := h.table.Profiles()
	languages := make([]LanguageInfo, 0, len(profiles))
	for _, p := range profiles {
		languages = append(languages, LanguageInfo{
			Name:     p.ID,
			Version:  p.Version,
			Compiled: p.HasBuild(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"languages": languages,
	})
}
