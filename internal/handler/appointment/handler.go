package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduler-api/internal/handler"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/service/appointment"
	"github.com/jwalitptl/scheduler-api/pkg/httputil"
)

const (
	warnBooked    = "appointment saved but the day's availability could not be refreshed"
	warnCancelled = "appointment cancelled but the day's availability could not be refreshed"
)

type Handler struct {
	svc *appointment.Service
}

func NewHandler(svc *appointment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(public, private *gin.RouterGroup) {
	public.POST("/therapists/:id/appointments", h.BookPublic)

	me := private.Group("/me")
	{
		me.GET("/appointments", h.List)
		me.GET("/appointments/calendar", h.Calendar)
		me.GET("/appointments/:id", h.Get)
		me.POST("/appointments", h.BookMine)
		me.DELETE("/appointments/:id", h.Cancel)
		me.GET("/clients", h.Clients)
	}
}

// BookPublic lets a client book with the therapist named in the path.
func (h *Handler) BookPublic(c *gin.Context) {
	id, err := handler.IDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.book(c, id)
}

// BookMine lets a therapist book on behalf of a client.
func (h *Handler) BookMine(c *gin.Context) {
	h.book(c, middleware.TherapistID(c))
}

func (h *Handler) book(c *gin.Context, therapistID int64) {
	var req model.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	booking, err := h.svc.Book(c.Request.Context(), therapistID, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if booking.Degraded() {
		httputil.RespondWithWarning(c, http.StatusCreated, booking.Appointment, warnBooked)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, booking.Appointment)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := handler.IDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	cancellation, err := h.svc.Cancel(c.Request.Context(), middleware.TherapistID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if cancellation.Degraded() {
		httputil.RespondWithWarning(c, http.StatusOK, cancellation.Appointment, warnCancelled)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, cancellation.Appointment)
}

func (h *Handler) List(c *gin.Context) {
	apts, err := h.svc.List(c.Request.Context(), middleware.TherapistID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, apts)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := handler.IDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	apt, err := h.svc.Get(c.Request.Context(), middleware.TherapistID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, apt)
}

func (h *Handler) Calendar(c *gin.Context) {
	entries, err := h.svc.Calendar(c.Request.Context(), middleware.TherapistID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, entries)
}

func (h *Handler) Clients(c *gin.Context) {
	clients, err := h.svc.Clients(c.Request.Context(), middleware.TherapistID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, clients)
}
