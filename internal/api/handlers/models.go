package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"aistudioproxy/internal/config"
	"aistudioproxy/pkg/models"
)

// ModelsHandler serves GET /v1/models with the configured model list.
func ModelsHandler(cfg *config.Config) echo.HandlerFunc {
	created := time.Now().Unix()
	return func(c echo.Context) error {
		list := models.ModelList{
			Object: "list",
			Data:   make([]models.ModelInfo, 0, len(cfg.Models.Supported)),
		}
		for _, id := range cfg.Models.Supported {
			list.Data = append(list.Data, models.ModelInfo{
				ID:      id,
				Object:  "model",
				Created: created,
				OwnedBy: "google",
			})
		}
		return c.JSON(http.StatusOK, list)
	}
}
