package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DevicesController handles device management endpoints. Registration
// happens over the CLI, not HTTP, so an empty server never exposes a
// token mint.
type DevicesController struct {
	store DeviceStore
}

func NewDevicesController(store DeviceStore) *DevicesController {
	return &DevicesController{store: store}
}

// ListDevices returns all registered devices.
func (d *DevicesController) ListDevices(c *gin.Context) {
	devices, err := d.store.List()
	if err != nil {
		respondInternalError(c, err, "list devices")
		return
	}
	c.JSON(http.StatusOK, devices)
}

// DeleteDevice revokes a device token.
func (d *DevicesController) DeleteDevice(c *gin.Context) {
	id := c.Param("id")
	if err := d.store.Delete(id); err != nil {
		respondInternalError(c, err, "delete device")
		return
	}
	respondSuccess(c, "device revoked")
}
