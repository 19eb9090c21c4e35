package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shs-registrar-api/internal/models"
	"github.com/noah-isme/shs-registrar-api/internal/service"
	appErrors "github.com/noah-isme/shs-registrar-api/pkg/errors"
	"github.com/noah-isme/shs-registrar-api/pkg/response"
)

// SchoolYearHandler exposes school year endpoints.
type SchoolYearHandler struct {
	service *service.SchoolYearService
}

// NewSchoolYearHandler constructs a school year handler.
func NewSchoolYearHandler(svc *service.SchoolYearService) *SchoolYearHandler {
	return &SchoolYearHandler{service: svc}
}

// List godoc
// @Summary List school years
// @Tags SchoolYears
// @Produce json
// @Param isActive query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /school-years [get]
func (h *SchoolYearHandler) List(c *gin.Context) {
	var filter models.SchoolYearFilter
	if isActive := c.Query("isActive"); isActive != "" {
		if val, err := strconv.ParseBool(isActive); err == nil {
			filter.IsActive = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	years, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, pagination)
}

// GetActive godoc
// @Summary Get active school year
// @Tags SchoolYears
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /school-years/active [get]
func (h *SchoolYearHandler) GetActive(c *gin.Context) {
	year, err := h.service.GetActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Get godoc
// @Summary Get school year
// @Tags SchoolYears
// @Produce json
// @Param id path string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id} [get]
func (h *SchoolYearHandler) Get(c *gin.Context) {
	year, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Create godoc
// @Summary Create school year
// @Tags SchoolYears
// @Accept json
// @Produce json
// @Param payload body service.CreateSchoolYearRequest true "School year payload"
// @Success 201 {object} response.Envelope
// @Router /school-years [post]
func (h *SchoolYearHandler) Create(c *gin.Context) {
	var req service.CreateSchoolYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// Update godoc
// @Summary Update school year
// @Tags SchoolYears
// @Accept json
// @Produce json
// @Param id path string true "School year ID"
// @Param payload body service.UpdateSchoolYearRequest true "School year payload"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id} [put]
func (h *SchoolYearHandler) Update(c *gin.Context) {
	var req service.UpdateSchoolYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Activate godoc
// @Summary Activate school year
// @Description Marks one school year active and deactivates the rest
// @Tags SchoolYears
// @Produce json
// @Param id path string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id}/activate [post]
func (h *SchoolYearHandler) Activate(c *gin.Context) {
	year, err := h.service.Activate(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// DeactivateAll godoc
// @Summary Deactivate all school years
// @Tags SchoolYears
// @Produce json
// @Success 204
// @Router /school-years/deactivate-all [post]
func (h *SchoolYearHandler) DeactivateAll(c *gin.Context) {
	if err := h.service.DeactivateAll(c.Request.Context(), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
