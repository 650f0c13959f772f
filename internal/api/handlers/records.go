package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voltlog/voltlog/internal/syncer"
	"github.com/voltlog/voltlog/pkg/ws"
)

// ListRecords 全量返回充电记录行
func (h *Handler) ListRecords(c *gin.Context) {
	rows, err := h.recordRepo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list records"})
		return
	}
	if rows == nil {
		rows = []syncer.RecordRow{}
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// RecordVersions 返回所有记录的 (id, 版本) 对
func (h *Handler) RecordVersions(c *gin.Context) {
	versions, err := h.recordRepo.Versions(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list record versions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list record versions"})
		return
	}
	if versions == nil {
		versions = []syncer.RecordVersion{}
	}

	c.JSON(http.StatusOK, gin.H{"data": versions})
}

// UpsertRecords 以 id 为冲突键批量写入充电记录
func (h *Handler) UpsertRecords(c *gin.Context) {
	var req struct {
		Rows []syncer.RecordRow `json:"rows"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	for _, row := range req.Rows {
		if row.ID == "" || row.LicensePlate == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Record row without id or license plate"})
			return
		}
	}

	if err := h.recordRepo.Upsert(c.Request.Context(), req.Rows); err != nil {
		h.logger.Error("Failed to upsert records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upsert records"})
		return
	}

	h.wsHub.BroadcastTableEvent(ws.MsgTypeRowsUpserted, "charging_records", len(req.Rows))
	c.JSON(http.StatusOK, gin.H{"upserted": len(req.Rows)})
}

// DeleteRecords 按 id 批量删除充电记录
func (h *Handler) DeleteRecords(c *gin.Context) {
	var req idsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.recordRepo.DeleteByIDs(c.Request.Context(), req.IDs); err != nil {
		h.logger.Error("Failed to delete records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete records"})
		return
	}

	h.wsHub.BroadcastTableEvent(ws.MsgTypeRowsDeleted, "charging_records", len(req.IDs))
	c.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
}
