package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deviceguard/internal/models"
	"deviceguard/internal/pdf"
	"deviceguard/internal/services"
	"deviceguard/pkg/domain"
)

type ModerationHandler struct {
	access  services.AccessService
	reports pdf.Generator
	appName string
	logger  *zap.Logger
	now     func() time.Time
}

func NewModerationHandler(access services.AccessService, reports pdf.Generator, appName string, logger *zap.Logger) *ModerationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationHandler{access: access, reports: reports, appName: appName, logger: logger, now: time.Now}
}

// BlockedDevice is the moderator view of a blocked binding.
type BlockedDevice struct {
	Fingerprint string     `json:"fingerprint"`
	Phone       string     `json:"phone"`
	Reason      string     `json:"reason"`
	BlockedBy   string     `json:"blocked_by,omitempty"`
	BlockedAt   *time.Time `json:"blocked_at,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

type blockRequest struct {
	Reason string `json:"reason"`
}

func (h *ModerationHandler) view(b *models.DeviceBinding) BlockedDevice {
	_, reason := b.Blocked(h.now())
	v := BlockedDevice{
		Fingerprint: b.Fingerprint,
		Phone:       domain.MaskPhone(b.Phone),
		Reason:      reason,
		BlockedAt:   b.BlockedAt,
	}
	if b.BlockedBy != nil {
		v.BlockedBy = *b.BlockedBy
	}
	if !b.IsBlocked {
		v.LockedUntil = b.LockedUntil
	}
	return v
}

// @Summary      Block device
// @Tags         Moderation
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        fingerprint  path      string        true  "Device fingerprint"
// @Param        request      body      blockRequest  true  "Reason"
// @Success      200          {object}  BlockedDevice
// @Failure      400          {object}  domain.ErrorResponse
// @Failure      404          {object}  domain.ErrorResponse
// @Router       /admin/devices/{fingerprint}/block [post]
func (h *ModerationHandler) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	b, err := h.access.Block(c.Request.Context(), c.Param("fingerprint"), req.Reason, moderatorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(b))
}

// @Summary      Unblock device
// @Description  Lifts a moderation block and any active lockout
// @Tags         Moderation
// @Produce      json
// @Security     BearerAuth
// @Param        fingerprint  path      string  true  "Device fingerprint"
// @Success      200          {object}  map[string]interface{}
// @Failure      404          {object}  domain.ErrorResponse
// @Router       /admin/devices/{fingerprint}/block [delete]
func (h *ModerationHandler) Unblock(c *gin.Context) {
	b, err := h.access.Unblock(c.Request.Context(), c.Param("fingerprint"), moderatorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fingerprint": b.Fingerprint, "status": b.EffectiveStatus(h.now())})
}

// @Summary      List blocked devices
// @Tags         Moderation
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   BlockedDevice
// @Failure      503  {object}  domain.ErrorResponse
// @Router       /admin/devices/blocked [get]
func (h *ModerationHandler) ListBlocked(c *gin.Context) {
	list, err := h.access.ListBlocked(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]BlockedDevice, 0, len(list))
	for _, b := range list {
		out = append(out, h.view(b))
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Blocked devices report
// @Tags         Moderation
// @Produce      application/pdf
// @Security     BearerAuth
// @Success      200  {file}    file
// @Failure      503  {object}  domain.ErrorResponse
// @Router       /admin/devices/blocked/report.pdf [get]
func (h *ModerationHandler) Report(c *gin.Context) {
	list, err := h.access.ListBlocked(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	now := h.now()
	data := pdf.BlockedReport{AppName: h.appName, GeneratedAt: now, GeneratedBy: moderatorFrom(c)}
	for _, b := range list {
		v := h.view(b)
		row := pdf.BlockedRow{
			Fingerprint: v.Fingerprint,
			Phone:       v.Phone,
			Reason:      v.Reason,
			BlockedBy:   v.BlockedBy,
			Until:       v.LockedUntil,
		}
		switch {
		case b.BlockedAt != nil:
			row.Since = *b.BlockedAt
		default:
			row.Since = b.UpdatedAt
		}
		data.Rows = append(data.Rows, row)
	}

	var buf bytes.Buffer
	if err := h.reports.BlockedDevicesReport(&buf, data); err != nil {
		h.logger.Error("[moderation][report] render failed", zap.Error(err))
		writeError(c, domain.NewError(domain.KindBackendUnavailable, "report could not be generated"))
		return
	}
	name := fmt.Sprintf("blocked-devices-%s.pdf", now.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
