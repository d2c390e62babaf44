package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type HealthResponse struct {
	Status      string  `json:"status"`
	Rooms       int     `json:"rooms"`
	Connections int     `json:"connections"`
	Sockets     int     `json:"sockets"`
	Uptime      float64 `json:"uptime"`
}

type RoomResponse struct {
	RoomID    domain.RoomID   `json:"roomId"`
	Members   []domain.Member `json:"members"`
	Count     int             `json:"count"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
}

type handlers struct {
	deps Deps
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Rooms:       h.deps.Rooms.RoomCount(),
		Connections: h.deps.Registry.Count(),
		Sockets:     h.deps.Rooms.SocketCount(),
		Uptime:      time.Since(h.deps.StartedAt).Seconds(),
	})
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.deps.ICEServers})
}

// room answers 200 for unknown rooms too, with no members.
func (h *handlers) room(c *gin.Context) {
	id := domain.RoomID(c.Param("roomId"))
	members := h.deps.Rooms.Members(id)
	resp := RoomResponse{RoomID: id, Members: members, Count: len(members)}
	if info, ok := h.deps.Rooms.Room(id); ok {
		resp.CreatedAt = &info.CreatedAt
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms := h.deps.Rooms.List()
	if rooms == nil {
		rooms = []core.RoomInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
