package handlers

import (
	"net/http"

	"garage-backend/internal/catalog"
	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
	"garage-backend/internal/services"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// DirectoryHandler serves the lookup data forms are built from.
type DirectoryHandler struct {
	userService *services.UserService
	log         *logger.Logger
}

func NewDirectoryHandler(userService *services.UserService, log *logger.Logger) *DirectoryHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &DirectoryHandler{
		userService: userService,
		log:         log.WithField("handler", "directory"),
	}
}

// ListMechanics returns every registered mechanic for vehicle assignment.
func (h *DirectoryHandler) ListMechanics(c *gin.Context) {
	mechanics, err := h.userService.ListMechanics(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "retrieve mechanics")
		return
	}
	if mechanics == nil {
		mechanics = []*models.Mechanic{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Mechanics retrieved successfully", mechanics)
}

type catalogResponse struct {
	catalog.Catalog
	MaintenanceTypes []models.MaintenanceType `json:"maintenanceTypes"`
	OilBrands        []string                 `json:"oilBrands"`
}

func (h *DirectoryHandler) Catalog(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Catalog retrieved successfully", catalogResponse{
		Catalog:          catalog.Get(),
		MaintenanceTypes: models.MaintenanceTypes,
		OilBrands:        maintenance.OilBrands,
	})
}
