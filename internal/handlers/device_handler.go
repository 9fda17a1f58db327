package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deviceguard/internal/services"
	"deviceguard/pkg/domain"
)

type DeviceHandler struct {
	reg    services.RegistrationService
	verify services.VerificationService
	access services.AccessService
}

func NewDeviceHandler(reg services.RegistrationService, verify services.VerificationService, access services.AccessService) *DeviceHandler {
	return &DeviceHandler{reg: reg, verify: verify, access: access}
}

// @Summary      Check device access
// @Description  Returns whether the device has access, needs verification or is blocked
// @Tags         Devices
// @Produce      json
// @Param        fingerprint  path      string  true  "Device fingerprint"
// @Success      200          {object}  domain.AccessStatus
// @Failure      400          {object}  domain.ErrorResponse
// @Failure      503          {object}  domain.ErrorResponse
// @Router       /devices/{fingerprint}/access [get]
func (h *DeviceHandler) CheckAccess(c *gin.Context) {
	st, err := h.access.Check(c.Request.Context(), c.Param("fingerprint"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Register device
// @Description  Binds the device to a phone number and sends a one-time code
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param        request  body      domain.RegisterRequest  true  "Registration"
// @Success      200      {object}  domain.RegisterResult
// @Failure      400      {object}  domain.ErrorResponse
// @Failure      403      {object}  domain.ErrorResponse
// @Failure      429      {object}  domain.ErrorResponse
// @Failure      503      {object}  domain.ErrorResponse
// @Router       /devices/register [post]
func (h *DeviceHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.reg.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Verify code
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param        request  body      domain.VerifyRequest  true  "Fingerprint and code"
// @Success      200      {object}  domain.VerifyResult
// @Failure      400      {object}  domain.ErrorResponse
// @Failure      403      {object}  domain.ErrorResponse
// @Failure      404      {object}  domain.ErrorResponse
// @Failure      422      {object}  domain.ErrorResponse
// @Router       /devices/verify [post]
func (h *DeviceHandler) Verify(c *gin.Context) {
	var req domain.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.verify.Verify(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Resend code
// @Description  Resends a device code, or an invitation link when invitation_token is given
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param        request  body      domain.ResendRequest  true  "Fingerprint or invitation token"
// @Success      200      {object}  domain.ResendResult
// @Failure      400      {object}  domain.ErrorResponse
// @Failure      404      {object}  domain.ErrorResponse
// @Failure      409      {object}  domain.ErrorResponse
// @Failure      410      {object}  domain.ErrorResponse
// @Failure      429      {object}  domain.ErrorResponse
// @Router       /devices/resend [post]
func (h *DeviceHandler) Resend(c *gin.Context) {
	var req domain.ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.reg.Resend(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
