package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"accesslog-backend/internal/domains/accesslog/model"
	"accesslog-backend/internal/domains/accesslog/service"
	"accesslog-backend/internal/shared/response"
)

type Handler struct {
	service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// RegisterRoutes mount toàn bộ endpoint của domain vào router group.
// Group này đã đi qua AdminAuth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	logs := rg.Group("/access-logs")
	{
		logs.GET("", h.List)
		logs.GET("/recent", h.Recent)
		logs.GET("/stats", h.Stats)
		logs.GET("/range", h.Range)
		logs.GET("/by-ip/:ip", h.ByIP)
		logs.GET("/by-user/:user_id", h.ByUser)
		logs.GET("/by-session/:session_id", h.BySession)
		logs.DELETE("/purge", h.Purge)
		logs.GET("/:id", h.Get)
		logs.DELETE("/:id", h.Delete)
	}

	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.Sessions)
		sessions.DELETE("/prune", h.PruneSessions)
		sessions.GET("/:id", h.Session)
	}
}

func bindListQuery(c *gin.Context) (model.ListQuery, bool) {
	var q model.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query parameters")
		return q, false
	}
	return q, true
}

// ════════════════════════════════════════════════════════════════
// LIST: GET /v1/access-logs
// ════════════════════════════════════════════════════════════════

func (h *Handler) List(c *gin.Context) {
	q, ok := bindListQuery(c)
	if !ok {
		return
	}

	items, total, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		response.FromError(c, err)
		return
	}

	norm := q.Normalize()
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  norm.Limit,
		Offset: norm.Offset,
		Total:  total,
	})
}

func (h *Handler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ════════════════════════════════════════════════════════════════
// RANGE: GET /v1/access-logs/range?start=...&end=...
// ════════════════════════════════════════════════════════════════

func (h *Handler) Range(c *gin.Context) {
	var rq model.RangeQuery
	if err := c.ShouldBindQuery(&rq); err != nil {
		response.BadRequest(c, "invalid query parameters")
		return
	}
	q, ok := bindListQuery(c)
	if !ok {
		return
	}

	items, err := h.service.Range(c.Request.Context(), rq, q)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

func (h *Handler) ByIP(c *gin.Context) {
	q, ok := bindListQuery(c)
	if !ok {
		return
	}
	items, err := h.service.ByIP(c.Request.Context(), c.Param("ip"), q)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

func (h *Handler) ByUser(c *gin.Context) {
	q, ok := bindListQuery(c)
	if !ok {
		return
	}
	items, err := h.service.ByUser(c.Request.Context(), c.Param("user_id"), q)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

func (h *Handler) BySession(c *gin.Context) {
	q, ok := bindListQuery(c)
	if !ok {
		return
	}
	items, err := h.service.BySession(c.Request.Context(), c.Param("session_id"), q)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// ════════════════════════════════════════════════════════════════
// GET / DELETE: /v1/access-logs/:id
// ════════════════════════════════════════════════════════════════

func (h *Handler) Get(c *gin.Context) {
	log, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, log)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ════════════════════════════════════════════════════════════════
// PURGE: DELETE /v1/access-logs/purge?before=...
// ════════════════════════════════════════════════════════════════

func (h *Handler) Purge(c *gin.Context) {
	var pq model.PurgeQuery
	if err := c.ShouldBindQuery(&pq); err != nil {
		response.BadRequest(c, "invalid query parameters")
		return
	}

	n, err := h.service.Purge(c.Request.Context(), pq)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"purged": n})
}

// ════════════════════════════════════════════════════════════════
// SESSIONS
// ════════════════════════════════════════════════════════════════

func (h *Handler) Sessions(c *gin.Context) {
	sessions, err := h.service.Sessions(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, sessions)
}

func (h *Handler) PruneSessions(c *gin.Context) {
	var pq model.PurgeQuery
	if err := c.ShouldBindQuery(&pq); err != nil {
		response.BadRequest(c, "invalid query parameters")
		return
	}

	n, err := h.service.PruneSessions(c.Request.Context(), pq)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"pruned": n})
}

func (h *Handler) Session(c *gin.Context) {
	session, err := h.service.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}
