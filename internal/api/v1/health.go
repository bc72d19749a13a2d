package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerdesk/backoffice/internal/logger"
)

// StoreChecker reports whether the record store can serve requests
type StoreChecker interface {
	Dir() string
}

type HealthHandler struct {
	store  StoreChecker
	logger *logger.Logger
}

func NewHealthHandler(store StoreChecker, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: logger,
	}
}

// @Summary Health check
// @Description Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"data_dir": h.store.Dir(),
	})
}
