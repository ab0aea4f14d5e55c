package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/http/handler"
)

func SlackRouter(rg *gin.RouterGroup, h *handler.SlackCommandHandler) {
	rg.POST("/command", h.Handle)
}
