package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/icxcommander/icxcommander/internal/config"
	"github.com/icxcommander/icxcommander/internal/database"
	"github.com/icxcommander/icxcommander/internal/inventory"
	"github.com/icxcommander/icxcommander/internal/provisioner"
)

// Handler handles API requests
type Handler struct {
	config      *config.Config
	inv         *inventory.Inventory
	provisioner *provisioner.Provisioner
	store       *database.Store
	logger      *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	cfg *config.Config,
	inv *inventory.Inventory,
	prov *provisioner.Provisioner,
	store *database.Store,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		config:      cfg,
		inv:         inv,
		provisioner: prov,
		store:       store,
		logger:      logger,
	}
}

// RegisterRoutes attaches all API routes to a router group
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.GET("/inventory", h.GetInventory)
	v1.GET("/inventory/switches/:mac", h.GetSwitch)
	v1.GET("/status", h.GetStatus)
	v1.POST("/provisioner/start", h.StartProvisioner)
	v1.POST("/provisioner/stop", h.StopProvisioner)
	v1.GET("/events", h.ListEvents)
	v1.GET("/snapshots/latest", h.GetLatestSnapshot)
}

// GetInventory returns the full fleet snapshot
func (h *Handler) GetInventory(c *gin.Context) {
	c.JSON(http.StatusOK, h.inv.TakeSnapshot())
}

// GetSwitch returns one switch record by MAC
func (h *Handler) GetSwitch(c *gin.Context) {
	mac := c.Param("mac")
	sw, ok := h.inv.GetSwitch(mac)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Switch not found"})
		return
	}
	c.JSON(http.StatusOK, sw)
}

// GetStatus returns a provisioning progress summary
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.provisioner.Status())
}

// StartProvisioner starts the background provisioning loop
func (h *Handler) StartProvisioner(c *gin.Context) {
	changed := h.provisioner.Start()
	if changed {
		h.logger.Info("Provisioner started via API")
	}
	c.JSON(http.StatusOK, gin.H{
		"running": h.provisioner.Running(),
		"changed": changed,
	})
}

// StopProvisioner stops the background provisioning loop
func (h *Handler) StopProvisioner(c *gin.Context) {
	changed := h.provisioner.Stop()
	if changed {
		h.logger.Info("Provisioner stopped via API")
	}
	c.JSON(http.StatusOK, gin.H{
		"running": h.provisioner.Running(),
		"changed": changed,
	})
}

// ListEvents returns recent provisioning events, optionally filtered by
// device MAC via the ?mac= query parameter.
func (h *Handler) ListEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	var (
		events []*database.Event
		err    error
	)
	if mac := c.Query("mac"); mac != "" {
		events, err = h.store.DeviceEvents(mac, limit)
	} else {
		events, err = h.store.RecentEvents(limit)
	}
	if err != nil {
		h.logger.Error("Failed to load events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GetLatestSnapshot returns the most recently persisted inventory view
func (h *Handler) GetLatestSnapshot(c *gin.Context) {
	snap, err := h.store.LatestSnapshot()
	if errors.Is(err, database.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No snapshot recorded"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load snapshot"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
