package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/sequencer"
)

type batchStepResponse struct {
	Succeeded     int           `json:"succeeded"`
	Total         int           `json:"total"`
	Skipped       int           `json:"skipped"`
	Attempted     int           `json:"attempted"`
	Failed        int           `json:"failed"`
	FirstSequence uint64        `json:"first_sequence"`
	Message       string        `json:"message"`
	Error         *errorPayload `json:"error,omitempty"`
}

func (s *Server) RecordStep(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req sequencer.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ProductID = strings.TrimSpace(c.Param("id"))

	step, err := s.sequencer.RecordEvent(c.Request.Context(), req, by)
	if err != nil {
		if errors.Is(err, errs.ErrSequencerBusy) {
			c.Header("Retry-After", "1")
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": step})
}

// RecordBatchStep reports the batch outcome with 200 when every eligible
// product was updated and 207 once the ledger phase started and stopped
// early. Failures before any submission map like any other error.
func (s *Server) RecordBatchStep(c *gin.Context) {
	by, ok := currentActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req sequencer.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.BatchID = strings.TrimSpace(c.Param("id"))

	result := s.sequencer.RecordBatchEvent(c.Request.Context(), req, by)
	if result.Error != nil && result.Attempted == 0 && !errs.IsLedger(result.Error) {
		if errors.Is(result.Error, errs.ErrSequencerBusy) {
			c.Header("Retry-After", "1")
		}
		AbortWithError(c, result.Error)
		return
	}

	resp := batchStepResponse{
		Succeeded:     result.Succeeded,
		Total:         result.Total,
		Skipped:       result.Skipped,
		Attempted:     result.Attempted,
		Failed:        result.Failed(),
		FirstSequence: result.FirstSequence,
		Message:       result.Message(),
	}
	status := http.StatusOK
	if result.Error != nil {
		_, payload := mapError(result.Error)
		resp.Error = &payload
		status = http.StatusMultiStatus
	}

	c.JSON(status, gin.H{"data": resp})
}
