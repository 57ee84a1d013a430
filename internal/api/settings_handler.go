package api

import (
	"errors"
	"histomicsui/hui-server/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SettingsHandler reads and writes the plugin settings.
type SettingsHandler struct {
	settingsService service.SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settingsService service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

type SettingRequest struct {
	Value interface{} `json:"value"`
}

type SettingResponse struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// GetSetting godoc
// @Summary Get a plugin setting
// @Tags Settings
// @Produce json
// @Param key path string true "Setting key"
// @Success 200 {object} SettingResponse
// @Failure 404 {object} gin.H "Unknown setting"
// @Router /hui/settings/{key} [get]
func (h *SettingsHandler) GetSetting(c *gin.Context) {
	key := c.Param("key")
	value, err := h.settingsService.Get(c.Request.Context(), key)
	if err != nil {
		h.abortWithSettingError(c, err)
		return
	}
	c.JSON(http.StatusOK, SettingResponse{Key: key, Value: value})
}

// PutSetting godoc
// @Summary Change a plugin setting
// @Tags Settings
// @Accept json
// @Produce json
// @Param key path string true "Setting key"
// @Param setting body SettingRequest true "New value"
// @Success 200 {object} SettingResponse
// @Failure 400 {object} gin.H "Invalid value"
// @Failure 404 {object} gin.H "Unknown setting"
// @Router /hui/settings/{key} [put]
func (h *SettingsHandler) PutSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	key := c.Param("key")
	value, err := h.settingsService.Set(c.Request.Context(), key, req.Value)
	if err != nil {
		h.abortWithSettingError(c, err)
		return
	}
	c.JSON(http.StatusOK, SettingResponse{Key: key, Value: value})
}

func (h *SettingsHandler) abortWithSettingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownSetting):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidSetting):
		abortWithError(c, http.StatusBadRequest, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "Could not access setting")
	}
}
