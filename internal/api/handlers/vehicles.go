package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voltlog/voltlog/internal/syncer"
	"github.com/voltlog/voltlog/pkg/ws"
)

// ListVehicles 全量返回车辆行
func (h *Handler) ListVehicles(c *gin.Context) {
	rows, err := h.vehicleRepo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vehicles"})
		return
	}
	if rows == nil {
		rows = []syncer.VehicleRow{}
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// VehicleVersions 返回所有车辆的 (车牌, 版本) 对
func (h *Handler) VehicleVersions(c *gin.Context) {
	versions, err := h.vehicleRepo.Versions(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list vehicle versions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vehicle versions"})
		return
	}
	if versions == nil {
		versions = []syncer.VehicleVersion{}
	}

	c.JSON(http.StatusOK, gin.H{"data": versions})
}

// UpsertVehicles 以车牌为冲突键批量写入车辆
func (h *Handler) UpsertVehicles(c *gin.Context) {
	var req struct {
		Rows []syncer.VehicleRow `json:"rows"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	for _, row := range req.Rows {
		if row.LicensePlate == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Vehicle row without license plate"})
			return
		}
	}

	if err := h.vehicleRepo.Upsert(c.Request.Context(), req.Rows); err != nil {
		h.logger.Error("Failed to upsert vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upsert vehicles"})
		return
	}

	h.wsHub.BroadcastTableEvent(ws.MsgTypeRowsUpserted, "vehicles", len(req.Rows))
	c.JSON(http.StatusOK, gin.H{"upserted": len(req.Rows)})
}

// DeleteVehicles 按 id 批量删除车辆
func (h *Handler) DeleteVehicles(c *gin.Context) {
	var req idsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.vehicleRepo.DeleteByIDs(c.Request.Context(), req.IDs); err != nil {
		h.logger.Error("Failed to delete vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete vehicles"})
		return
	}

	h.wsHub.BroadcastTableEvent(ws.MsgTypeRowsDeleted, "vehicles", len(req.IDs))
	c.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
}
