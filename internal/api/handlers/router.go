package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// 同步 API，全部需要 api key
	sync := r.Group("/api/sync", h.authRequired())
	{
		// 车辆
		sync.GET("/vehicles", h.ListVehicles)
		sync.GET("/vehicles/versions", h.VehicleVersions)
		sync.POST("/vehicles/upsert", h.UpsertVehicles)
		sync.POST("/vehicles/delete", h.DeleteVehicles)

		// 充电记录
		sync.GET("/records", h.ListRecords)
		sync.GET("/records/versions", h.RecordVersions)
		sync.POST("/records/upsert", h.UpsertRecords)
		sync.POST("/records/delete", h.DeleteRecords)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}
