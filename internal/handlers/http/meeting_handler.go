package http

import (
	"net/http"
	"strings"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/internal/infrastructure/monitoring"
	"meshcall/pkg/validation"

	"github.com/gin-gonic/gin"
)

type MeetingHandler struct {
	meetingService ports.MeetingService
	metrics        *monitoring.Collector
}

func NewMeetingHandler(meetingService ports.MeetingService, metrics *monitoring.Collector) *MeetingHandler {
	return &MeetingHandler{
		meetingService: meetingService,
		metrics:        metrics,
	}
}

func (h *MeetingHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/meetings", h.CreateMeeting)
		api.GET("/meetings/:code", h.ResolveMeeting)
		api.DELETE("/meetings/:code", h.EndMeeting)
	}
}

// CreateMeeting mints a join code for the originator. The code doubles
// as the originator's rendezvous id, so joiners know whom to call first.
func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	var req struct {
		Originator domain.PeerID `json:"originator" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidatePeerID(string(req.Originator)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meeting, err := h.meetingService.CreateMeeting(c.Request.Context(), req.Originator)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.metrics.MeetingCreated()
	c.JSON(http.StatusCreated, gin.H{
		"meeting": meeting,
	})
}

func (h *MeetingHandler) ResolveMeeting(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if err := validation.ValidateMeetingCode(code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meeting, err := h.meetingService.ResolveMeeting(c.Request.Context(), domain.MeetingCode(code))
	if err != nil {
		if err == domain.ErrMeetingNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meeting": meeting,
	})
}

func (h *MeetingHandler) EndMeeting(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if err := validation.ValidateMeetingCode(code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.meetingService.EndMeeting(c.Request.Context(), domain.MeetingCode(code)); err != nil {
		if err == domain.ErrMeetingNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.metrics.MeetingEnded()
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}
