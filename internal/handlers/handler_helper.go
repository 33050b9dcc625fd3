package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/middleware"
	"github.com/farellandr/ucshop/internal/models"
)

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		helpers.RespondWithAppError(c, apperrors.Validation(name, "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return models.Actor{}, false
	}
	return actor, true
}
