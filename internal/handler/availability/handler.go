package availability

import (
	"fmt"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduler-api/internal/handler"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/service/availability"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/httputil"
)

type Handler struct {
	svc *availability.Service
}

func NewHandler(svc *availability.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(public, private *gin.RouterGroup) {
	public.GET("/therapists/:id/availability/dates", h.OpenDates)
	public.GET("/therapists/:id/availability/times", h.AvailableTimes)

	me := private.Group("/me/availability")
	{
		me.GET("", h.ListWindows)
		me.PUT("", h.DeclareWindow)
		me.PUT("/range", h.DeclareRange)
		me.DELETE("/:date", h.DeleteWindow)
	}
}

// OpenDates handles ?month=YYYY-MM, defaulting to the current month.
func (h *Handler) OpenDates(c *gin.Context) {
	id, err := handler.IDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	month := h.svc.Today()
	if q := c.Query("month"); q != "" {
		if month, err = model.ParseMonth(q); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid month, expected YYYY-MM", err))
			return
		}
	}

	dates, err := h.svc.ListOpenDates(c.Request.Context(), id, month)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, model.OpenDatesResponse{
		Month: fmt.Sprintf("%04d-%02d", month.Year, int(month.Month)),
		Dates: dates,
	})
}

func (h *Handler) AvailableTimes(c *gin.Context) {
	id, err := handler.IDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	date, err := handler.DateParam(c.Query("date"), "date")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	times, err := h.svc.AvailableTimes(c.Request.Context(), id, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, model.AvailableTimesResponse{Date: date, Times: times})
}

// ListWindows handles ?from=&to= (inclusive), defaulting to the next 31 days.
func (h *Handler) ListWindows(c *gin.Context) {
	from := h.svc.Today()
	to := from.AddDays(31)
	var err error
	if q := c.Query("from"); q != "" {
		if from, err = handler.DateParam(q, "from"); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}
	if q := c.Query("to"); q != "" {
		if to, err = handler.DateParam(q, "to"); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}

	windows, err := h.svc.ListWindows(c.Request.Context(), middleware.TherapistID(c), from, to)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, windows)
}

func (h *Handler) DeclareWindow(c *gin.Context) {
	var req model.DeclareWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	// Formats were checked by the binding rules.
	date, _ := civil.ParseDate(req.Date)
	start, _ := model.ParseClock(req.StartTime)
	end, _ := model.ParseClock(req.EndTime)

	window, err := h.svc.DeclareWindow(c.Request.Context(), middleware.TherapistID(c), date, start, end)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, window)
}

func (h *Handler) DeclareRange(c *gin.Context) {
	var req model.DeclareRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	windows, err := h.svc.DeclareRange(c.Request.Context(), middleware.TherapistID(c), req.Start, req.End)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, windows)
}

func (h *Handler) DeleteWindow(c *gin.Context) {
	date, err := handler.DateParam(c.Param("date"), "date")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.svc.DeleteWindow(c.Request.Context(), middleware.TherapistID(c), date); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
