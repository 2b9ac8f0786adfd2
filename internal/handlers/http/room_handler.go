package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"
	"syncplay/pkg/errors"
	"syncplay/pkg/utils"
	"syncplay/pkg/validation"

	"github.com/gin-gonic/gin"
)

// WebSocketPath is the route prefix clients connect to after a REST join.
const WebSocketPath = "/ws/room/"

type RoomHandler struct {
	roomService ports.RoomService
	controller  ports.RoomController
	publicURL   string
}

// NewRoomHandler builds the REST handler. Changes made through controller
// reach the live websocket sessions of the room. publicURL, when set, turns
// the returned websocket paths into absolute ws:// or wss:// URLs.
func NewRoomHandler(roomService ports.RoomService, controller ports.RoomController, publicURL string) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		controller:  controller,
		publicURL:   strings.TrimRight(publicURL, "/"),
	}
}

var _ ports.RoomHTTPHandler = (*RoomHandler)(nil)

func (h *RoomHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/rooms", h.CreateRoom)
		api.POST("/rooms/join", h.JoinRoom)
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:room_id", h.GetRoom)
		api.GET("/rooms/:room_id/messages", h.GetMessages)
		api.DELETE("/rooms/:room_id/leave", h.LeaveRoom)
		api.POST("/rooms/:room_id/control", h.ControlPlayback)
		api.POST("/rooms/:room_id/change-video", h.ChangeVideo)
	}
}

type CreateRoomRequest struct {
	RoomName string `json:"room_name" binding:"required,max=100"`
	UserName string `json:"user_name" binding:"required,max=50"`
}

type JoinRoomRequest struct {
	RoomID   string `json:"room_id" binding:"required,max=100"`
	UserName string `json:"user_name" binding:"required,max=50"`
}

type LeaveRoomRequest struct {
	UserID string `json:"user_id"`
}

type ControlRequest struct {
	UserID   string   `json:"user_id" binding:"required"`
	Action   string   `json:"action" binding:"required,oneof=play pause seek"`
	Position *float64 `json:"position"`
}

type ChangeVideoRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	VideoURL   string `json:"video_url" binding:"required"`
	VideoTitle string `json:"video_title"`
}

type userResponse struct {
	ID     domain.ParticipantID `json:"id"`
	Name   string               `json:"name"`
	IsHost bool                 `json:"is_host"`
}

type eventResponse struct {
	ID        string               `json:"id"`
	RoomID    domain.RoomID        `json:"room_id"`
	UserID    domain.ParticipantID `json:"user_id,omitempty"`
	Type      domain.EventType     `json:"type"`
	Data      json.RawMessage      `json:"data,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("room_name and user_name are required"))
		return
	}

	room, host, err := h.roomService.CreateRoom(c.Request.Context(), req.RoomName, req.UserName)
	if err != nil {
		c.Error(errors.FromDomain(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"room": room.Snapshot(),
		"user": userResponse{
			ID:     host.ID,
			Name:   host.Name,
			IsHost: true,
		},
		"websocket_url": h.websocketURL(room.ID),
	})
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("room_id and user_name are required"))
		return
	}
	if err := validation.ValidateRoomID(req.RoomID); err != nil {
		c.Error(errors.NewValidationError(err.Error()))
		return
	}

	room, participantID, err := h.roomService.CheckJoin(c.Request.Context(), domain.RoomID(req.RoomID), req.UserName)
	if err != nil {
		c.Error(errors.FromDomain(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":          room.Snapshot(),
		"user_id":       participantID,
		"websocket_url": h.websocketURL(room.ID),
	})
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListActiveRooms(c.Request.Context())
	if err != nil {
		c.Error(errors.FromDomain(err))
		return
	}

	snapshots := make([]domain.RoomSnapshot, len(rooms))
	for i, room := range rooms {
		snapshots[i] = room.Snapshot()
	}
	c.JSON(http.StatusOK, gin.H{"rooms": snapshots})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	room, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		c.Error(errors.FromDomain(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room.Snapshot()})
}

func (h *RoomHandler) GetMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.Error(errors.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	events, err := h.roomService.RecentEvents(c.Request.Context(), roomID, limit)
	if err != nil {
		c.Error(errors.FromDomain(err))
		return
	}

	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = eventResponse{
			ID:        e.ID,
			RoomID:    e.RoomID,
			UserID:    e.ParticipantID,
			Type:      e.Type,
			Data:      e.Payload,
			Timestamp: e.Timestamp,
		}
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// LeaveRoom takes user_id from the JSON body or, for clients that cannot
// send a body with DELETE, from the query string.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req LeaveRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errors.NewValidationError("invalid request body"))
			return
		}
	}
	if req.UserID == "" {
		req.UserID = c.Query("user_id")
	}
	participantID, ok := participantIDField(c, req.UserID)
	if !ok {
		return
	}

	if err := h.controller.LeaveRoom(c.Request.Context(), roomID, participantID); err != nil {
		c.Error(errors.FromDomain(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"user_id": participantID,
	})
}

func (h *RoomHandler) ControlPlayback(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("user_id and action (play, pause or seek) are required"))
		return
	}
	participantID, ok := participantIDField(c, req.UserID)
	if !ok {
		return
	}

	var position time.Duration
	if req.Position != nil {
		position = utils.SecondsToDuration(*req.Position)
	}

	room, err := h.controller.ControlPlayback(c.Request.Context(), roomID, participantID, domain.EventType(req.Action), position)
	if err != nil {
		c.Error(errors.FromDomain(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room.Snapshot()})
}

func (h *RoomHandler) ChangeVideo(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req ChangeVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("user_id and video_url are required"))
		return
	}
	participantID, ok := participantIDField(c, req.UserID)
	if !ok {
		return
	}

	video := domain.Video{
		URL:   strings.TrimSpace(req.VideoURL),
		Title: strings.TrimSpace(utils.SanitizeString(req.VideoTitle)),
	}
	if err := validation.ValidateVideoURL(video.URL); err != nil {
		c.Error(errors.NewValidationError(err.Error()))
		return
	}
	if err := validation.ValidateVideoTitle(video.Title); err != nil {
		c.Error(errors.NewValidationError(err.Error()))
		return
	}

	room, err := h.controller.ChangeVideo(c.Request.Context(), roomID, participantID, video)
	if err != nil {
		c.Error(errors.FromDomain(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room.Snapshot()})
}

func (h *RoomHandler) websocketURL(roomID domain.RoomID) string {
	path := WebSocketPath + string(roomID)
	switch {
	case h.publicURL == "":
		return path
	case strings.HasPrefix(h.publicURL, "https://"):
		return "wss://" + strings.TrimPrefix(h.publicURL, "https://") + path
	case strings.HasPrefix(h.publicURL, "http://"):
		return "ws://" + strings.TrimPrefix(h.publicURL, "http://") + path
	}
	return h.publicURL + path
}

func participantIDField(c *gin.Context, raw string) (domain.ParticipantID, bool) {
	if err := validation.ValidateParticipantID(raw); err != nil {
		c.Error(errors.NewValidationError(err.Error()))
		return "", false
	}
	return domain.ParticipantID(raw), true
}

func roomIDParam(c *gin.Context) (domain.RoomID, bool) {
	roomID := c.Param("room_id")
	if err := validation.ValidateRoomID(roomID); err != nil {
		c.Error(errors.NewValidationError(err.Error()))
		return "", false
	}
	return domain.RoomID(roomID), true
}
