package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/auto-comb/app/feed"
	"github.com/lysyi3m/auto-comb/app/scheduler"
)

const (
	defaultListingLimit = 20
	maxListingLimit     = 200
)

func NewHandler(ctrl scheduler.Controller, version string) *Handler {
	return &Handler{ctrl: ctrl, feed: feed.NewGenerator(), version: version, now: time.Now}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"timestamp": h.now().In(time.Local).Format(time.RFC3339),
	}

	if st, err := h.ctrl.Status(c.Request.Context()); err == nil {
		health["monitoring"] = st.Monitoring
		health["state"] = st.State
	} else {
		slog.Error("Status error", "operation", "health", "error", err)
		health["status"] = "degraded"
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.ctrl.Status(c.Request.Context())
	if err != nil {
		slog.Error("Status error", "operation", "get_status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := gin.H{
		"version":       st.Version,
		"monitoring":    st.Monitoring,
		"state":         st.State,
		"interval":      st.Interval.String(),
		"cycles_run":    st.CyclesRun,
		"cycles_failed": st.CyclesFailed,
		"thresholds": gin.H{
			"high":   st.Thresholds.High,
			"medium": st.Thresholds.Medium,
		},
		"totals": gin.H{
			"listings":  st.Totals.Total,
			"high":      st.Totals.High,
			"last_24h":  st.Totals.Last24h,
			"avg_score": st.Totals.AvgScore,
			"seen":      st.Totals.SeenCount,
		},
	}
	if !st.StartedAt.IsZero() {
		resp["started_at"] = st.StartedAt
	}
	if !st.NextRunAt.IsZero() {
		resp["next_run_at"] = st.NextRunAt
	}
	if last := st.LastCycle; last != nil {
		resp["last_cycle"] = gin.H{
			"id":          last.ID,
			"started_at":  last.StartedAt,
			"finished_at": last.FinishedAt,
			"fetched":     last.Fetched,
			"new":         last.Fresh,
			"accepted":    last.Accepted,
			"rejected":    last.Rejected,
			"error":       last.Error,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListListings(c *gin.Context) {
	limit := defaultListingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListingLimit)
	}

	listings, err := h.ctrl.Recent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "recent_listings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]listingResponse, 0, len(listings))
	for _, s := range listings {
		items = append(items, toListingResponse(s))
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": items,
		"total":    len(items),
	})
}

// GetFeed serves the most recent matched listings as RSS.
func (h *Handler) GetFeed(c *gin.Context) {
	listings, err := h.ctrl.Recent(c.Request.Context(), defaultListingLimit)
	if err != nil {
		slog.Error("Database error", "operation", "feed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	rss, err := h.feed.Run(feed.Channel{
		Title:       "Auto-Comb",
		Link:        fmt.Sprintf("%s://%s/", scheme, c.Request.Host),
		Description: "Annonces retenues par Auto-Comb",
		SelfLink:    fmt.Sprintf("%s://%s/feed.xml", scheme, c.Request.Host),
		Version:     h.version,
	}, listings)
	if err != nil {
		slog.Error("Feed generation error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate feed"})
		return
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.ctrl.Stats(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	byModel := make(map[string]int, len(stats.Models))
	models := make([]gin.H, 0, len(stats.Models))
	for _, m := range stats.Models {
		byModel[m.Model] = m.Count
		models = append(models, gin.H{
			"model":     m.Model,
			"count":     m.Count,
			"avg_score": m.AvgScore,
			"avg_price": m.AvgPrice,
		})
	}
	daily := make([]gin.H, 0, len(stats.Daily))
	for _, d := range stats.Daily {
		daily = append(daily, gin.H{"day": d.Day, "count": d.Count, "avg_score": d.AvgScore})
	}

	c.JSON(http.StatusOK, gin.H{
		"totals": gin.H{
			"listings":  stats.Totals.Total,
			"high":      stats.Totals.High,
			"last_24h":  stats.Totals.Last24h,
			"avg_score": stats.Totals.AvgScore,
			"seen":      stats.Totals.SeenCount,
		},
		"by_model": byModel,
		"models":   models,
		"daily":    daily,
	})
}

func (h *Handler) ListCriteria(c *gin.Context) {
	criteria := h.ctrl.Criteria()

	items := make([]gin.H, 0, len(criteria))
	for _, cr := range criteria {
		items = append(items, gin.H{
			"name":         cr.Name,
			"brand":        cr.Brand,
			"model":        cr.Model,
			"max_price":    cr.MaxPrice,
			"max_mileage":  cr.MaxMileage,
			"min_year":     cr.MinYear,
			"fuel":         cr.Fuel,
			"transmission": cr.Transmission,
			"priority":     cr.Priority,
		})
	}

	c.JSON(http.StatusOK, gin.H{"criteria": items, "total": len(items)})
}

func (h *Handler) StartMonitoring(c *gin.Context) {
	if err := h.ctrl.StartMonitoring(c.Request.Context()); err != nil {
		slog.Error("Failed to start monitoring", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start monitoring", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "monitoring": true})
}

func (h *Handler) StopMonitoring(c *gin.Context) {
	if err := h.ctrl.StopMonitoring(c.Request.Context()); err != nil {
		slog.Error("Failed to stop monitoring", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop monitoring", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "monitoring": false})
}

func (h *Handler) SetHighThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.ctrl.SetHighThreshold(c.Request.Context(), *req.High); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid threshold", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "high": *req.High})
}

func (h *Handler) RunCycle(c *gin.Context) {
	res, err := h.ctrl.RunNow(c.Request.Context())
	if errors.Is(err, scheduler.ErrCycleRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"cycle_id":   res.CycleID,
		"duration":   res.Duration().String(),
		"searches":   res.Searches,
		"fetched":    res.Fetched,
		"new":        res.Fresh,
		"accepted":   res.Accepted,
		"rejected":   res.Rejected,
		"rejections": res.Rejections,
	}
	if err != nil {
		resp["success"] = false
		resp["error"] = err.Error()
		c.JSON(http.StatusBadGateway, resp)
		return
	}

	resp["success"] = true
	c.JSON(http.StatusOK, resp)
}
