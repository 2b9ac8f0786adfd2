package ports

import (
	"github.com/gin-gonic/gin"
)

type RoomHTTPHandler interface {
	CreateRoom(c *gin.Context)
	JoinRoom(c *gin.Context)
	GetRoom(c *gin.Context)
	ListRooms(c *gin.Context)
	GetMessages(c *gin.Context)
}
