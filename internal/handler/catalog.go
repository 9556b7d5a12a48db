package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rigshop-api/internal/model"
	"rigshop-api/internal/service"
	"rigshop-api/pkg/apierror"
	"rigshop-api/pkg/response"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// CatalogHandler handles component and configuration requests.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog *service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger.Named("catalog_handler")}
}

// ListComponents handles GET /api/components?page=&limit=
func (h *CatalogHandler) ListComponents(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}

	components, err := h.catalog.ListComponents(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	start := (page - 1) * limit
	if start > len(components) {
		start = len(components)
	}
	end := start + limit
	if end > len(components) {
		end = len(components)
	}
	response.JSONWithMeta(w, http.StatusOK, components[start:end], page, limit, int64(len(components)))
}

// GetComponent handles GET /api/components/{componentId}
func (h *CatalogHandler) GetComponent(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.GetComponent(r.Context(), chi.URLParam(r, "componentId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.OK(w, c)
}

// CreateComponentRequest is the body of POST /api/components.
type CreateComponentRequest struct {
	ComponentID string            `json:"componentId"`
	Name        string            `json:"name"`
	Stock       int               `json:"stock"`
	Price       decimal.Decimal   `json:"price"`
	Specs       map[string]string `json:"specs"`
}

// CreateComponent handles POST /api/components
func (h *CatalogHandler) CreateComponent(w http.ResponseWriter, r *http.Request) {
	var req CreateComponentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.catalog.CreateComponent(r.Context(), service.CreateComponentInput{
		ID:    req.ComponentID,
		Name:  req.Name,
		Stock: req.Stock,
		Price: req.Price,
		Specs: req.Specs,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.Created(w, c)
}

// SetStockRequest is the body of PATCH /api/components/{componentId}/stock.
type SetStockRequest struct {
	Stock *int `json:"stock"`
}

// SetStock handles PATCH /api/components/{componentId}/stock
func (h *CatalogHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req SetStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Stock == nil {
		response.Error(w, apierror.ValidationError("stock is required",
			apierror.FieldError{Field: "stock", Message: "required"}))
		return
	}

	c, err := h.catalog.SetStock(r.Context(), chi.URLParam(r, "componentId"), *req.Stock)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.OK(w, c)
}

// ListConfigurations handles GET /api/configs
func (h *CatalogHandler) ListConfigurations(w http.ResponseWriter, r *http.Request) {
	configs, err := h.catalog.ListConfigurations(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.OK(w, configs)
}

// GetConfiguration handles GET /api/configs/{configId}
func (h *CatalogHandler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.GetConfigurationDetail(r.Context(), chi.URLParam(r, "configId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.OK(w, detail)
}

// CreateConfigurationRequest is the body of POST /api/configs.
type CreateConfigurationRequest struct {
	ConfigID    string                   `json:"configId"`
	Name        string                   `json:"name"`
	Price       decimal.Decimal          `json:"price"`
	Description string                   `json:"description"`
	Components  []model.CompositionEntry `json:"components"`
}

// CreateConfiguration handles POST /api/configs
func (h *CatalogHandler) CreateConfiguration(w http.ResponseWriter, r *http.Request) {
	var req CreateConfigurationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	detail, err := h.catalog.CreateConfiguration(r.Context(), service.CreateConfigurationInput{
		ID:          req.ConfigID,
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Components:  req.Components,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.Created(w, detail)
}

// pagination parses page and limit query parameters, writing a 400 when they are malformed.
func pagination(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, defaultPageLimit
	var details []apierror.FieldError

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			details = append(details, apierror.FieldError{Field: "page", Message: "must be a positive integer"})
		}
		page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageLimit {
			details = append(details, apierror.FieldError{Field: "limit", Message: "must be between 1 and " + strconv.Itoa(maxPageLimit)})
		}
		limit = n
	}

	if len(details) > 0 {
		response.Error(w, apierror.ValidationError("invalid pagination", details...))
		return 0, 0, false
	}
	return page, limit, true
}
