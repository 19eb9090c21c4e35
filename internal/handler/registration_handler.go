package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shs-registrar-api/internal/service"
	"github.com/noah-isme/shs-registrar-api/pkg/response"
)

// RegistrationHandler exposes certificate of registration endpoints.
type RegistrationHandler struct {
	service *service.RegistrationService
}

// NewRegistrationHandler constructs a registration handler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Generate godoc
// @Summary Generate certificate of registration
// @Description Generates the COR for an approved enrollment; repeated calls return the existing certificate
// @Tags Registrations
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/cor [post]
func (h *RegistrationHandler) Generate(c *gin.Context) {
	cor, err := h.service.GenerateCOR(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cor)
}

// GetByEnrollment godoc
// @Summary Get certificate by enrollment
// @Tags Registrations
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/cor [get]
func (h *RegistrationHandler) GetByEnrollment(c *gin.Context) {
	cor, err := h.service.GetByEnrollment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cor, nil)
}

// Get godoc
// @Summary Get certificate of registration
// @Tags Registrations
// @Produce json
// @Param id path string true "COR ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	cor, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cor, nil)
}

// GetSubjects godoc
// @Summary Get certificate subjects
// @Description Lists the class offerings materialised onto the certificate, credited subjects included
// @Tags Registrations
// @Produce json
// @Param id path string true "COR ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/subjects [get]
func (h *RegistrationHandler) GetSubjects(c *gin.Context) {
	subjects, err := h.service.GetCORSubjects(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// Regenerate godoc
// @Summary Regenerate certificate of registration
// @Description Rebuilds the certificate's class enrollments from the current section roster
// @Tags Registrations
// @Produce json
// @Param id path string true "COR ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/regenerate [post]
func (h *RegistrationHandler) Regenerate(c *gin.Context) {
	cor, err := h.service.RegenerateCOR(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cor, nil)
}
