package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys for the authenticated device.
const (
	ContextKeyDeviceID   = "device_id"
	ContextKeyDeviceName = "device_name"
)

// TokenAuthMiddleware authenticates requests with "Authorization:
// Token <device-id>.<secret>" headers. Unauthenticated requests get a
// 401; the device is stored on the context for handlers.
func TokenAuthMiddleware(authenticator DeviceAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Token ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing device token"})
			return
		}

		device, err := authenticator.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid device token"})
			return
		}

		c.Set(ContextKeyDeviceID, device.ID)
		c.Set(ContextKeyDeviceName, device.Name)
		c.Next()
	}
}

// DeviceName returns the authenticated device's name, empty when the
// request was not authenticated.
func DeviceName(c *gin.Context) string {
	return c.GetString(ContextKeyDeviceName)
}
