package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/settings"
)

type SettingsHandler struct {
	settings *settings.Store
}

func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{settings: store}
}

func (h *SettingsHandler) GetGatewaySettings(c *gin.Context) {
	preview, err := h.settings.Preview(c.Request.Context())
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	helpers.RespondWithData(c, http.StatusOK, preview)
}

func (h *SettingsHandler) UpdateGatewaySettings(c *gin.Context) {
	var req settings.GatewayInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindingError(c, err)
		return
	}

	actor, ok := currentActor(c)
	if !ok {
		return
	}

	preview, err := h.settings.Save(c.Request.Context(), req, actor.ID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	helpers.RespondWithData(c, http.StatusOK, preview)
}
