package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"screenlink/internal/agent"
	"screenlink/internal/core/ports"
	"screenlink/internal/infrastructure/secrets"
)

// ControlHandler is the local loopback API used by the tray UI and by
// operators. It never listens on a public interface.
type ControlHandler struct {
	agent    *agent.Agent
	input    ports.InputRouter
	secrets  ports.SecretStore
	registry *prometheus.Registry
	logger   *zap.SugaredLogger
}

func NewControlHandler(
	ag *agent.Agent,
	input ports.InputRouter,
	secretStore ports.SecretStore,
	registry *prometheus.Registry,
	logger *zap.SugaredLogger,
) *ControlHandler {
	return &ControlHandler{
		agent:    ag,
		input:    input,
		secrets:  secretStore,
		registry: registry,
		logger:   logger,
	}
}

func (h *ControlHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/status", h.Status)
	router.POST("/login", h.Login)
	router.POST("/logout", h.Logout)
	router.POST("/start", h.Start)
	router.POST("/stop", h.Stop)
	router.POST("/input", h.SetInput)

	if h.registry != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}
}

func (h *ControlHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ControlHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":      h.agent.IsRunning(),
		"sessions":     h.agent.SessionCount(),
		"pressed_keys": h.input.PressedKeyCount(),
	})
}

// Login stores the auth token for the next start. The token itself is never
// echoed back or logged.
func (h *ControlHandler) Login(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.secrets.Set(secrets.KeyAuthToken, req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("auth token stored")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Logout stops the agent and forgets the stored credentials.
func (h *ControlHandler) Logout(c *gin.Context) {
	h.agent.Stop(c.Request.Context())
	if err := h.secrets.Delete(secrets.KeyAuthToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.secrets.Delete(secrets.KeyUserInfo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("logged out")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ControlHandler) Start(c *gin.Context) {
	if err := h.agent.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (h *ControlHandler) Stop(c *gin.Context) {
	h.agent.Stop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// SetInput toggles remote input injection at runtime.
func (h *ControlHandler) SetInput(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.input.SetEnabled(*req.Enabled)
	h.logger.Infow("input injection toggled", "enabled", *req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}
