package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/orders"
)

const maxCallbackBody = 64 << 10

type PaymentHandler struct {
	orders *orders.Manager
}

func NewPaymentHandler(manager *orders.Manager) *PaymentHandler {
	return &PaymentHandler{orders: manager}
}

// HandleCallback receives the gateway's server-to-server notification. The
// body may be JSON or form encoded.
func (h *PaymentHandler) HandleCallback(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody)

	payload, err := readCallbackPayload(c)
	if err != nil {
		helpers.RespondWithAppError(c, apperrors.Wrap(apperrors.CodeValidation, "Invalid callback payload.", err))
		return
	}

	outcome, err := h.orders.HandleCallback(c.Request.Context(), payload, c.ClientIP())
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	helpers.RespondWithData(c, http.StatusOK, outcome)
}

func readCallbackPayload(c *gin.Context) (map[string]string, error) {
	payload := make(map[string]string)

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var raw map[string]interface{}
		decoder := json.NewDecoder(c.Request.Body)
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			return nil, err
		}
		for key, value := range raw {
			switch v := value.(type) {
			case nil:
			case string:
				payload[key] = v
			case json.Number:
				payload[key] = v.String()
			case bool:
				payload[key] = fmt.Sprintf("%t", v)
			default:
				encoded, _ := json.Marshal(v)
				payload[key] = string(encoded)
			}
		}
		return payload, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			payload[key] = values[0]
		}
	}
	return payload, nil
}
