package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/stock"
)

type StockImportRequest struct {
	Codes []string `json:"codes" binding:"required,min=1,max=10000"`
}

type StockHandler struct {
	stock *stock.Service
}

func NewStockHandler(service *stock.Service) *StockHandler {
	return &StockHandler{stock: service}
}

// ImportStock accepts either JSON {"codes": [...]} or a multipart text file
// field "file" with one code per line.
func (h *StockHandler) ImportStock(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var codes []string
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			helpers.RespondWithAppError(c, apperrors.Validation("file", "is required"))
			return
		}
		codes, err = helpers.ReadUploadedLines(fileHeader)
		if err != nil {
			helpers.RespondWithAppError(c, apperrors.Validation("file", err.Error()))
			return
		}
	} else {
		var req StockImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.RespondWithBindingError(c, err)
			return
		}
		codes = req.Codes
	}

	result, err := h.stock.Import(c.Request.Context(), productID, codes, &actor.ID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusCreated, result)
}

func (h *StockHandler) StockSummary(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	available, err := h.stock.Available(c.Request.Context(), productID)
	if err != nil {
		helpers.RespondWithAppError(c, apperrors.Wrap(apperrors.CodeDatabase, "failed to count stock", err))
		return
	}

	helpers.RespondWithData(c, http.StatusOK, gin.H{
		"product_id": productID,
		"available":  available,
	})
}
