package ports

import "github.com/gin-gonic/gin"

type MeetingHandler interface {
	CreateMeeting(c *gin.Context)
	ResolveMeeting(c *gin.Context)
	EndMeeting(c *gin.Context)
}
