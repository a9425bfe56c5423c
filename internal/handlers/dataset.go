package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/services"
	"github.com/federated-storage/proofpay/internal/storage"
)

// DatasetHandler handles dataset lifecycle requests
type DatasetHandler struct {
	datasetService *services.DatasetService
	provingService *services.ProvingService
	store          storage.Store
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(datasetService *services.DatasetService, provingService *services.ProvingService, store storage.Store) *DatasetHandler {
	return &DatasetHandler{
		datasetService: datasetService,
		provingService: provingService,
		store:          store,
	}
}

// Create handles signed dataset creation
func (h *DatasetHandler) Create(c *gin.Context) {
	var req services.CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dataset, err := h.datasetService.CreateDataset(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dataset)
}

// Get handles dataset retrieval
func (h *DatasetHandler) Get(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	dataset, err := h.datasetService.GetDataset(c.Request.Context(), datasetID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	state, err := h.provingService.State(c.Request.Context(), datasetID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dataset": dataset, "proving": state})
}

// AddPieces handles signed piece addition
func (h *DatasetHandler) AddPieces(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	var req services.AddPiecesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pieces, err := h.datasetService.AddPieces(c.Request.Context(), datasetID, req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"pieces": pieces})
}

// ScheduleRemoval handles signed piece removal scheduling
func (h *DatasetHandler) ScheduleRemoval(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	var req services.ScheduleRemovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.datasetService.ScheduleRemoval(c.Request.Context(), datasetID, req); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

// Delete handles signed dataset deletion
func (h *DatasetHandler) Delete(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	var req services.DeleteDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.datasetService.DeleteDataset(c.Request.Context(), datasetID, req); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Proven handles the per-epoch proven query used by external settlement
// tooling
func (h *DatasetHandler) Proven(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	epochNum, err := strconv.ParseInt(c.Query("epoch"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid epoch"})
		return
	}

	proven, err := h.provingService.IsEpochProven(c.Request.Context(), datasetID, epochNum)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"epoch": epochNum, "proven": proven})
}

// Events handles listing a dataset's recorded events
func (h *DatasetHandler) Events(c *gin.Context) {
	datasetID, ok := datasetParam(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	events, err := h.store.ListEvents(c.Request.Context(), datasetID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func datasetParam(c *gin.Context) (uuid.UUID, bool) {
	datasetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dataset id"})
		return uuid.Nil, false
	}
	return datasetID, true
}
