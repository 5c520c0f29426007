package therapist

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/scheduler-api/internal/handler"
	"github.com/jwalitptl/scheduler-api/internal/middleware"
	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/service/therapist"
	"github.com/jwalitptl/scheduler-api/pkg/httputil"
)

type Handler struct {
	svc *therapist.Service
}

func NewHandler(svc *therapist.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(public, private *gin.RouterGroup) {
	public.POST("/therapists", h.Register)
	public.GET("/therapists/:id/service", h.GetService)

	me := private.Group("/me")
	{
		me.GET("", h.GetMe)
		me.PUT("", h.UpdateMe)
		me.DELETE("", h.DeleteMe)
		me.GET("/service", h.GetMyService)
		me.PUT("/service", h.UpsertMyService)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.CreateTherapistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	t, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, t)
}

func (h *Handler) GetService(c *gin.Context) {
	id, err := handler.IDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	svc, err := h.svc.GetService(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, svc)
}

func (h *Handler) GetMe(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), middleware.TherapistID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, t)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var req model.UpdateTherapistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	t, err := h.svc.Update(c.Request.Context(), middleware.TherapistID(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, t)
}

func (h *Handler) DeleteMe(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.TherapistID(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetMyService(c *gin.Context) {
	svc, err := h.svc.GetService(c.Request.Context(), middleware.TherapistID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, svc)
}

func (h *Handler) UpsertMyService(c *gin.Context) {
	var req model.UpsertServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	svc, err := h.svc.UpsertService(c.Request.Context(), middleware.TherapistID(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, svc)
}
