package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomheat"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusAccepted = "accepted"
	statusIngested = "ingested"
	statusModeSet  = "auto_mode_set"

	errListRooms       = "failed to list rooms"
	errGetRoom         = "failed to load room"
	errGetBookings     = "failed to load bookings"
	errIngestRooms     = "failed to ingest rooms"
	errIngestBookings  = "failed to ingest bookings"
	errRefreshRoom     = "failed to re-evaluate room"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Request DTO for forcing a room temperature.
type forceTemperatureRequest struct {
	Temperature float64 `json:"temperature" binding:"required"`
}

// Request DTO for toggling auto mode.
type autoModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// Request DTO for syncing a room's valves.
type syncRequest struct {
	Temperature float64 `json:"temperature" binding:"required"`
}

// ingestPayload is the reservation snapshot pushed by the booking source
// poller.
type bookingDTO struct {
	ID        string `json:"id" binding:"required"`
	RoomID    string `json:"room_id" binding:"required"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
	Status    string `json:"status"`
	GuestName string `json:"guest_name"`
	Occupants int    `json:"occupants"`
}

type roomDTO struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List rooms with state summary
// @Tags         rooms
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "rooms, states"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/rooms [get]
// @Security     BearerAuth
func (h *Handler) listRooms(c *gin.Context) {
	ctx := c.Request.Context()
	rooms, err := h.services.Rooms.AllRooms(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListRooms, "rooms_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rooms":  rooms,
		"states": h.services.Heating.StatesSummary(),
	})
}

// @Summary      Room overview
// @Description  State, driving booking, heating schedule, stay info and per-valve health.
// @Tags         rooms
// @Produce      json
// @Param        id  path  string  true  "Room ID"
// @Success      200  {object}  service.RoomOverview
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/rooms/{id} [get]
// @Security     BearerAuth
func (h *Handler) getRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := roomheat.RoomID(c.Param("id"))
	ov, err := h.services.Monitoring.RoomOverview(ctx, roomID)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetRoom, "room_overview_failed", err, "room", roomID)
		return
	}
	c.JSON(http.StatusOK, ov)
}

// @Summary      List a room's bookings
// @Tags         rooms
// @Produce      json
// @Param        id  path  string  true  "Room ID"
// @Success      200  {object}  map[string]interface{}  "count, bookings"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/rooms/{id}/bookings [get]
// @Security     BearerAuth
func (h *Handler) getRoomBookings(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := roomheat.RoomID(c.Param("id"))
	bookings, err := h.services.Rooms.RoomBookings(ctx, roomID)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetBookings, "room_bookings_failed", err, "room", roomID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(bookings), "bookings": bookings})
}

// @Summary      Force room temperature
// @Description  Disables auto mode for the room and drives every valve to the setpoint. Delivery runs in the background.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path  string                   true  "Room ID"
// @Param        body  body  forceTemperatureRequest  true  "Setpoint payload"
// @Success      202   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/rooms/{id}/temperature [post]
// @Security     BearerAuth
func (h *Handler) forceTemperature(c *gin.Context) {
	var req forceTemperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	roomID := roomheat.RoomID(c.Param("id"))
	ids, err := h.services.Heating.ForceRoomTemperature(ctx, roomID, req.Temperature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":      statusAccepted,
		"temperature": req.Temperature,
		"actuators":   ids,
		"auto_mode":   false,
	})
}

// @Summary      Set room auto mode
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path  string           true  "Room ID"
// @Param        body  body  autoModeRequest  true  "Auto-mode payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/rooms/{id}/auto-mode [post]
// @Security     BearerAuth
func (h *Handler) setAutoMode(c *gin.Context) {
	var req autoModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	roomID := roomheat.RoomID(c.Param("id"))
	if err := h.services.Heating.SetRoomAutoMode(ctx, roomID, *req.Enabled); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusModeSet, "enabled": *req.Enabled})
}

// @Summary      Sync a room's valves to one setpoint
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path  string       true  "Room ID"
// @Param        body  body  syncRequest  true  "Setpoint payload"
// @Success      202   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/rooms/{id}/sync [post]
// @Security     BearerAuth
func (h *Handler) syncValves(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	roomID := roomheat.RoomID(c.Param("id"))
	ids, err := h.services.Heating.SyncRoomValves(ctx, roomID, req.Temperature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":      statusAccepted,
		"temperature": req.Temperature,
		"actuators":   ids,
	})
}

// @Summary      Re-evaluate a room now
// @Description  Runs one evaluation pass for the room without waiting for the next tick.
// @Tags         rooms
// @Produce      json
// @Param        id  path  string  true  "Room ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/rooms/{id}/refresh [post]
// @Security     BearerAuth
func (h *Handler) refreshRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := roomheat.RoomID(c.Param("id"))
	if err := h.services.Heating.EvaluateRoom(ctx, roomID); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errRefreshRoom, "room_refresh_failed", err, "room", roomID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
		"state":  h.services.Heating.RoomState(roomID),
	})
}

// @Summary      Ingest rooms
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        body  body  []roomDTO  true  "Rooms payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/rooms [post]
// @Security     BearerAuth
func (h *Handler) ingestRooms(c *gin.Context) {
	var dtos []roomDTO
	if err := c.ShouldBindJSON(&dtos); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	rooms := make([]roomheat.RoomInfo, 0, len(dtos))
	for _, d := range dtos {
		rooms = append(rooms, roomheat.RoomInfo{ID: roomheat.RoomID(d.ID), Name: d.Name, Category: d.Category})
	}
	if err := h.services.Rooms.IngestRooms(c.Request.Context(), rooms); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errIngestRooms, "rooms_ingest_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusIngested, "count": len(rooms)})
}

// @Summary      Ingest bookings
// @Description  Upserts a reservation snapshot from the booking source. Unparseable times are stored and treated as soft failures downstream.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        body  body  []bookingDTO  true  "Bookings payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/bookings [post]
// @Security     BearerAuth
func (h *Handler) ingestBookings(c *gin.Context) {
	var dtos []bookingDTO
	if err := c.ShouldBindJSON(&dtos); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	bookings := make([]roomheat.Booking, 0, len(dtos))
	for _, d := range dtos {
		bookings = append(bookings, roomheat.Booking{
			ID:        d.ID,
			RoomID:    roomheat.RoomID(d.RoomID),
			Arrival:   roomheat.ParseTimestamp(d.Arrival),
			Departure: roomheat.ParseTimestamp(d.Departure),
			Status:    roomheat.BookingStatus(d.Status),
			GuestName: d.GuestName,
			Occupants: d.Occupants,
		})
	}
	if err := h.services.Rooms.IngestBookings(c.Request.Context(), bookings); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errIngestBookings, "bookings_ingest_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusIngested, "count": len(bookings)})
}
