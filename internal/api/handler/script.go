package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/api/response"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
)

// ScriptHandler serves the character catalog
type ScriptHandler struct {
	catalog *catalog.Catalog
}

// NewScriptHandler creates a new script handler
func NewScriptHandler(catalog *catalog.Catalog) *ScriptHandler {
	return &ScriptHandler{catalog: catalog}
}

// List handles GET /api/v1/scripts
func (h *ScriptHandler) List(w http.ResponseWriter, _ *http.Request) {
	scripts := h.catalog.Scripts()
	out := make([]response.ScriptSummary, len(scripts))
	for i, s := range scripts {
		out[i] = response.ScriptSummary{ID: s.ID, Name: s.Name}
	}
	response.JSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/scripts/{scriptId}
func (h *ScriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.catalog.Script(model.ScriptID(mux.Vars(r)["scriptId"]))
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.ScriptFromCatalog(s))
}
