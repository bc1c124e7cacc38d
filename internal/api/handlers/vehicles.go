package handlers

import (
	"net/http"

	"garage-backend/internal/services"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type VehicleHandler struct {
	vehicleService     *services.VehicleService
	maintenanceService *services.MaintenanceService
	log                *logger.Logger
}

func NewVehicleHandler(vehicleService *services.VehicleService, maintenanceService *services.MaintenanceService, log *logger.Logger) *VehicleHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &VehicleHandler{
		vehicleService:     vehicleService,
		maintenanceService: maintenanceService,
		log:                log.WithField("handler", "vehicles"),
	}
}

// GetVehicles lists the caller's vehicles: owned ones for an owner, assigned
// ones for a mechanic.
func (h *VehicleHandler) GetVehicles(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	vehicles, err := h.vehicleService.List(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err, "retrieve vehicles")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Vehicles retrieved successfully", vehicles)
}

// GetVehicle returns the vehicle with its summary and most recent records.
func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	overview, err := h.maintenanceService.Overview(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "retrieve vehicle")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Vehicle retrieved successfully", overview)
}

func (h *VehicleHandler) CreateVehicle(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req services.VehicleInput
	if !bindJSON(c, &req) {
		return
	}

	vehicle, err := h.vehicleService.Create(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, h.log, err, "create vehicle")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Vehicle created successfully", vehicle)
}

// UpdateVehicle overwrites the editable fields of the same vehicle document.
func (h *VehicleHandler) UpdateVehicle(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req services.VehicleInput
	if !bindJSON(c, &req) {
		return
	}

	vehicle, err := h.vehicleService.Update(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, h.log, err, "update vehicle")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Vehicle updated successfully", vehicle)
}

// DeleteVehicle removes the vehicle only. Its maintenance records stay.
func (h *VehicleHandler) DeleteVehicle(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	if err := h.vehicleService.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		respondError(c, h.log, err, "delete vehicle")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Vehicle deleted successfully", nil)
}
