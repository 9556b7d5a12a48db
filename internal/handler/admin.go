package handler

import (
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"rigshop-api/internal/cache"
	"rigshop-api/internal/repository"
	"rigshop-api/internal/service"
	"rigshop-api/internal/store"
	"rigshop-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	table     store.Table
	cache     cache.Cache
	restocks  repository.RestockRepository
	scheduler *service.RestockScheduler
	storeType string
	logger    *zap.Logger
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	table store.Table,
	c cache.Cache,
	restocks repository.RestockRepository,
	scheduler *service.RestockScheduler,
	storeType string,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		table:     table,
		cache:     c,
		restocks:  restocks,
		scheduler: scheduler,
		storeType: storeType,
		logger:    logger.Named("admin_handler"),
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.storeType

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	if storeStats, err := h.table.Stats(ctx); err == nil {
		storeStats["status"] = "connected"
		stats["store"] = storeStats
	} else {
		stats["store"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	if h.cache != nil {
		stats["cache"] = h.cache.Stats(ctx)
	} else {
		stats["cache"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	if pending, err := h.restocks.ListPending(ctx); err == nil {
		stats["pending_restocks"] = len(pending)
	} else {
		stats["pending_restocks"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// ListPendingRestocks handles GET /api/admin/restocks
func (h *AdminHandler) ListPendingRestocks(w http.ResponseWriter, r *http.Request) {
	pending, err := h.restocks.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.OK(w, pending)
}

// RunRestocks handles POST /api/admin/restocks/run
func (h *AdminHandler) RunRestocks(w http.ResponseWriter, r *http.Request) {
	applied, err := h.scheduler.RunNow()
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.OK(w, map[string]interface{}{"applied": applied})
}
