package handler

import (
	"net/http"

	"github.com/Shree113/newcd/internal/language"
)

// Catalog lists the configured profiles and whether each can run here.
// *language.Registry implements it.
type Catalog interface {
	Profiles() []language.Profile
	ToolchainAvailable(p language.Profile) bool
}

// LanguageInfo describes one profile to the frontend. Commands are left out:
// they are server configuration, not something a client needs to see.
type LanguageInfo struct {
	Key            string `json:"key"`
	Extension      string `json:"extension"`
	Compiled       bool   `json:"compiled"`
	Available      bool   `json:"available"`
	CompileTimeout string `json:"compileTimeout,omitempty"`
	RunTimeout     string `json:"runTimeout"`
}

type LanguageHandler struct {
	catalog Catalog
}

func NewLanguageHandler(catalog Catalog) *LanguageHandler {
	return &LanguageHandler{catalog: catalog}
}

// HandleList serves GET /api/languages.
func (h *LanguageHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	profiles := h.catalog.Profiles()
	out := make([]LanguageInfo, 0, len(profiles))
	for _, p := range profiles {
		info := LanguageInfo{
			Key:        p.Key,
			Extension:  p.Extension,
			Compiled:   p.Compiled(),
			Available:  h.catalog.ToolchainAvailable(p),
			RunTimeout: p.RunTimeout.String(),
		}
		if p.Compiled() {
			info.CompileTimeout = p.CompileTimeout.String()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}
