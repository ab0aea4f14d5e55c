package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/http/handler"
)

func RunRouter(rg *gin.RouterGroup, h *handler.RunHandler, stream *handler.StatusStreamHandler) {
	rg.POST("", h.Trigger)
	rg.GET("/status", h.Status)
	rg.GET("/stream", stream.Stream)
}
