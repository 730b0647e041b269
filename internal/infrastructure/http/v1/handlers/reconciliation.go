package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReconciliationHandler serves fiscal versus physical reports.
type ReconciliationHandler struct {
	*BaseHandler
	service *reconciliation.Service
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(base *BaseHandler, service *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{BaseHandler: base, service: service}
}

func (h *ReconciliationHandler) query(c *gin.Context) (reconciliation.Query, bool) {
	var q reconciliation.Query
	var ok bool
	if q.Start, ok = h.RequireDate(c, "start"); !ok {
		return q, false
	}
	if q.End, ok = h.RequireDate(c, "end"); !ok {
		return q, false
	}
	if q.ProductID, ok = h.OptionalID(c, "product_id"); !ok {
		return q, false
	}
	return q, true
}

// Compare handles GET /reconciliation?start&end[&product_id]
func (h *ReconciliationHandler) Compare(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}

	report, err := h.service.ComparePeriod(c.Request.Context(), q)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}

// Detail handles GET /reconciliation/detail?product_id&stream&direction&start&end
func (h *ReconciliationHandler) Detail(c *gin.Context) {
	productID, ok := h.RequireID(c, "product_id")
	if !ok {
		return
	}
	q, ok := h.query(c)
	if !ok {
		return
	}

	stream := reconciliation.Stream(c.Query("stream"))
	if !stream.Valid() {
		h.Error(c, apperror.NewValidation("stream must be fiscal or physical").WithDetail("field", "stream"))
		return
	}
	direction := entity.Direction(c.Query("direction"))
	if !direction.Valid() {
		h.Error(c, apperror.NewValidation("direction must be IN or OUT").WithDetail("field", "direction"))
		return
	}

	records, err := h.service.Detail(c.Request.Context(), reconciliation.DetailQuery{
		ProductID: productID,
		Stream:    stream,
		Direction: direction,
		Start:     q.Start,
		End:       q.End,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, dto.FromSourceRecords(records), 0, 0)
}

// Export handles GET /reconciliation/export?start&end[&product_id]
// The body is zstd-compressed NDJSON.
func (h *ReconciliationHandler) Export(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}

	// the report is computed before anything is written, so errors still map to JSON
	report, err := h.service.ComparePeriod(c.Request.Context(), q)
	if err != nil {
		h.Error(c, err)
		return
	}

	filename := fmt.Sprintf("reconciliation_%s_%s.ndjson.zst",
		q.Start.Format(types.DateLayout), q.End.Format(types.DateLayout))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/zstd")
	c.Status(http.StatusOK)

	if err := reconciliation.WriteExport(c.Writer, report); err != nil {
		// headers are gone; the client sees a truncated stream
		_ = c.Error(err)
	}
}
