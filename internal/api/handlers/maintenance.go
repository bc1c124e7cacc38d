package handlers

import (
	"net/http"
	"time"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
	"garage-backend/internal/services"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type MaintenanceHandler struct {
	maintenanceService *services.MaintenanceService
	log                *logger.Logger
	now                func() time.Time
}

func NewMaintenanceHandler(maintenanceService *services.MaintenanceService, log *logger.Logger) *MaintenanceHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &MaintenanceHandler{
		maintenanceService: maintenanceService,
		log:                log.WithField("handler", "maintenance"),
		now:                time.Now,
	}
}

// GetHistory returns every record of the vehicle, newest first.
func (h *MaintenanceHandler) GetHistory(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	records, err := h.maintenanceService.History(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "retrieve maintenance history")
		return
	}
	if records == nil {
		records = []*models.MaintenanceRecord{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Maintenance history retrieved successfully", records)
}

func (h *MaintenanceHandler) CreateRecord(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var draft maintenance.Draft
	if !bindJSON(c, &draft) {
		return
	}

	record, err := h.maintenanceService.Submit(c.Request.Context(), a, c.Param("id"), draft)
	if err != nil {
		respondError(c, h.log, err, "save maintenance")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Maintenance record saved", record)
}

func (h *MaintenanceHandler) GetSummary(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	summary, err := h.maintenanceService.Summary(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "retrieve maintenance summary")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Maintenance summary retrieved successfully", summary)
}

// DraftEvaluation is the composer's view of a draft: what state it is in,
// what still blocks submission, and the live total.
type DraftEvaluation struct {
	State       maintenance.State            `json:"state"`
	Errors      maintenance.ValidationErrors `json:"errors"`
	TotalCost   float64                      `json:"totalCost"`
	OilTypeHint string                       `json:"oilTypeHint,omitempty"`
}

// ValidateDraft evaluates a draft without writing anything.
func (h *MaintenanceHandler) ValidateDraft(c *gin.Context) {
	var draft maintenance.Draft
	if !bindJSON(c, &draft) {
		return
	}

	composer := maintenance.NewComposer("", 0, h.now())
	if err := composer.Apply(draft); err != nil {
		respondError(c, h.log, err, "evaluate draft")
		return
	}

	errs := composer.Errors()
	if errs == nil {
		errs = maintenance.ValidationErrors{}
	}

	eval := DraftEvaluation{
		State:     composer.State(),
		Errors:    errs,
		TotalCost: composer.TotalCost(),
	}
	if oil, ok := composer.Draft().Details.(*models.OilChangeDetails); ok && oil.OilType != "" && !maintenance.IsOilType(oil.OilType) {
		eval.OilTypeHint = maintenance.OilTypeFormatHint
	}

	utils.SuccessResponse(c, http.StatusOK, "Draft evaluated", eval)
}
