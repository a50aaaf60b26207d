package handlers

import (
	"fmt"
	"strconv"

	"quickchat/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StatusCheck liveness of the http server
// @Summary Check server status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Produce plain
// @Success 200 {string} string "Server is live"
// @Router /api/status [get]
func StatusCheck(c *fiber.Ctx) error {
	return c.SendString("Server is live")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging for a service
// @Tags Shared
// @Param service query string false "Service name"
// @Param status query bool true "Debug status"
// @Success 200 {string} string "Service debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	service := c.Query("service")
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("service", service), zap.String("status", statusStr))

	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid status value")
	}

	// 目前只有一個 logger
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("service[%s]: debug mode is : %t", service, status))
}
