// Package api exposes the key switcher over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/celerix-dev/key-switcher/internal/service"
	"github.com/celerix-dev/key-switcher/pkg/schema"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	Service *service.Service
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, schema.HealthResponse{Status: "healthy", Service: "key_switcher"})
}

func (h *Handler) AddUser(c *gin.Context) {
	var req schema.AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	err := h.Service.Register(c.Request.Context(), req.Name, req.PID)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"message": "User added successfully"})
	case errors.Is(err, service.ErrMissingParameters):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error processing request: " + err.Error()})
	}
}

func (h *Handler) TempKey(c *gin.Context) {
	var req schema.TempKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	grant, err := h.Service.FetchKey(c.Request.Context(), req.PID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.TempKeyResponse{Key: grant.Key})
}

func (h *Handler) Usage(c *gin.Context) {
	rec, err := h.Service.Lookup(c.Request.Context(), c.Param("pid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.UsageResponse{
		PID:         rec.PID,
		Calls:       rec.Calls,
		LastKeyTime: rec.LastKeyTime,
	})
}

func (h *Handler) Schedule(c *gin.Context) {
	entries := h.Service.Schedule().Entries()
	out := make([]schema.ScheduleEntry, len(entries))
	for i, e := range entries {
		out[i] = schema.ScheduleEntry{KeyID: e.KeyID, StartsAt: e.At}
	}
	c.JSON(http.StatusOK, out)
}

// fail maps service errors onto status codes and error bodies.
func (h *Handler) fail(c *gin.Context, err error) {
	var cfgErr *service.KeyNotConfiguredError
	switch {
	case errors.Is(err, service.ErrMissingPID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing PID"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, service.ErrNoApplicableKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No available key"})
	case errors.As(err, &cfgErr):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": cfgErr.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error processing request: " + err.Error()})
	}
}
