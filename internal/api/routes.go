package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, handler *Handler, push *PushHandler, admin gin.HandlerFunc) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if push != nil {
		router.GET("/ws", admin, push.Serve)
	}

	v1 := router.Group("/api/v1")
	v1.Use(admin)
	{
		v1.POST("/upload/upload-excel", handler.UploadExcel)

		v1.GET("/imports/:request_id", handler.GetImportProgress)
		v1.GET("/imports/:request_id/file", handler.DownloadImportFile)

		v1.GET("/uploads/:type", handler.ListUploadEntries)
		v1.POST("/uploads/:type", handler.CreateUploadEntry)
		v1.DELETE("/uploads/:type/:id", handler.DeleteUploadEntry)

		v1.GET("/notifications", handler.ListNotifications)
		v1.PUT("/notifications/:id", handler.UpdateNotification)
		v1.DELETE("/notifications/:id", handler.DeleteNotification)

		v1.GET("/students", handler.ListStudents)
		v1.DELETE("/students", handler.DeleteStudents)
	}
}
