package handlers

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipo-yield-backend/services"
	"github.com/fenilmodi00/ipo-yield-backend/shared"
)

// AdminTokenHeader carries the admin token on admin routes
const AdminTokenHeader = "X-Admin-Token"

type AdminHandler struct {
	Datasets *services.DatasetService
	Store    services.RecordStore
	Token    string
}

// NewAdminHandler creates the dataset admin handler. store may be nil when no
// database is configured; token "" leaves admin routes open.
func NewAdminHandler(datasets *services.DatasetService, store services.RecordStore, token string) *AdminHandler {
	return &AdminHandler{
		Datasets: datasets,
		Store:    store,
		Token:    token,
	}
}

// RequireToken rejects admin requests without the configured token
func (h *AdminHandler) RequireToken(c *fiber.Ctx) error {
	if h.Token == "" {
		return c.Next()
	}

	provided := c.Get(AdminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.Token)) != 1 {
		logrus.WithFields(logrus.Fields{
			"component": "AdminHandler",
			"path":      c.Path(),
			"ip":        c.IP(),
		}).Warn("Rejected admin request with invalid token")
		return respondError(c, shared.NewServiceError(
			shared.ErrorCategoryAuthentication, shared.CodeUnauthorized, "missing or invalid admin token",
			"http-api", "RequireToken", false, nil,
		))
	}
	return c.Next()
}

// GetDataset returns the current snapshot's metadata
func (h *AdminHandler) GetDataset(c *fiber.Ctx) error {
	return respondData(c, h.Datasets.Status())
}

// RefreshDataset reloads the snapshot from its source, bypassing the cache
func (h *AdminHandler) RefreshDataset(c *fiber.Ctx) error {
	logrus.Info("Manual dataset refresh triggered via admin endpoint")
	startTime := time.Now()

	if _, err := h.Datasets.Refresh(c.UserContext(), true); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Dataset refreshed",
		"data":      h.Datasets.Status(),
		"duration":  time.Since(startTime).String(),
		"timestamp": time.Now(),
	})
}

// ImportDataset writes the current snapshot's records to the database
func (h *AdminHandler) ImportDataset(c *fiber.Ctx) error {
	if h.Store == nil {
		return respondError(c, shared.NewServiceError(
			shared.ErrorCategoryResource, shared.CodeServiceUnavailable, "database is not configured",
			"http-api", "ImportDataset", false, nil,
		))
	}

	written, err := h.Datasets.ImportSnapshot(c.UserContext(), h.Store)
	if err != nil {
		return respondError(c, err)
	}

	return respondData(c, fiber.Map{
		"written": written,
		"source":  h.Datasets.Snapshot().Source,
	})
}

// Health reports liveness and whether a snapshot with records is loaded
func (h *AdminHandler) Health(c *fiber.Ctx) error {
	status := h.Datasets.Status()
	state := "ok"
	if status.Records == 0 {
		state = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":    state,
		"timestamp": time.Now().Unix(),
		"dataset": fiber.Map{
			"source":    status.Source,
			"records":   status.Records,
			"loaded_at": status.LoadedAt,
		},
	})
}
