package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/response"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
)

// IngestionService defines the interface for document ingestion and record archival.
type IngestionService interface {
	Submit(ctx context.Context, req *service.IngestRequest) (*service.IngestAck, error)
	Archive(ctx context.Context, recordID uuid.UUID) (*models.PastPerformanceRecord, error)
}

// IngestHandler handles HTTP requests that change past-performance content.
type IngestHandler struct {
	service IngestionService
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(service IngestionService) *IngestHandler {
	return &IngestHandler{service: service}
}

// RecordBody carries the structured fields of a past-performance record.
type RecordBody struct {
	Name           string     `json:"name"           validate:"required,max=500,no_null_bytes"`
	ContractNumber string     `json:"contractNumber" validate:"max=100,no_null_bytes"`
	Customer       string     `json:"customer"       validate:"max=500,no_null_bytes"`
	CustomerType   string     `json:"customerType"   validate:"max=100,no_null_bytes"`
	ContractValue  float64    `json:"contractValue"  validate:"gte=0"`
	Role           string     `json:"role"           validate:"omitempty,oneof=prime sub"`
	WorkPercentage *float64   `json:"workPercentage" validate:"omitempty,gte=0,lte=100"`
	PeriodStart    *time.Time `json:"periodStart"`
	PeriodEnd      *time.Time `json:"periodEnd"`
	ResourceCount  int        `json:"resourceCount"  validate:"gte=0"`
}

// DocumentBody is one source document of an ingest request.
type DocumentBody struct {
	ID           *uuid.UUID      `json:"id"`
	Class        string          `json:"class"        validate:"required,document_class"`
	Title        string          `json:"title"        validate:"max=500,no_null_bytes"`
	Text         string          `json:"text"         validate:"required,no_null_bytes"`
	WeightFactor *float64        `json:"weightFactor" validate:"omitempty,gt=0,lte=1"`
	Metadata     json.RawMessage `json:"metadata"`
}

// IngestBody is the body for POST /v1/ingest.
type IngestBody struct {
	RecordID    uuid.UUID      `json:"recordID"    validate:"required"`
	Record      *RecordBody    `json:"record"`
	UnifiedText string         `json:"unifiedText" validate:"required,no_null_bytes"`
	Documents   []DocumentBody `json:"documents"   validate:"max=100,dive"`
}

// ArchiveResponse acknowledges an archive request.
type ArchiveResponse struct {
	RecordID uuid.UUID `json:"recordID"`
	Status   string    `json:"status"`
}

// Ingest handles POST /v1/ingest. The profile is stored before the response; processing is asynchronous.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var body IngestBody
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := body.toRequest()
	if err != nil {
		response.RespondServiceError(w, r, err, "Ingest failed")
		return
	}

	ack, err := h.service.Submit(r.Context(), req)
	if err != nil {
		response.RespondServiceError(w, r, err, "Ingest failed")
		return
	}

	response.RespondJSON(w, http.StatusAccepted, ack)
}

// Archive handles POST /v1/past-performances/{id}/archive.
func (h *IngestHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid past performance ID")
		return
	}

	record, err := h.service.Archive(r.Context(), id)
	if err != nil {
		response.RespondServiceError(w, r, err, "Archive failed")
		return
	}

	response.RespondJSON(w, http.StatusAccepted, ArchiveResponse{RecordID: record.ID, Status: string(record.Status)})
}

func (b *IngestBody) toRequest() (*service.IngestRequest, error) {
	req := &service.IngestRequest{
		RecordID:    b.RecordID,
		UnifiedText: b.UnifiedText,
		Documents:   make([]models.PPDocument, 0, len(b.Documents)),
	}

	if b.Record != nil {
		role := models.ContractRole(b.Record.Role)
		if role == "" {
			role = models.RolePrime
		}

		req.Record = &models.PastPerformanceRecord{
			ID:             b.RecordID,
			Name:           b.Record.Name,
			ContractNumber: b.Record.ContractNumber,
			Customer:       b.Record.Customer,
			CustomerType:   b.Record.CustomerType,
			ContractValue:  b.Record.ContractValue,
			Role:           role,
			WorkPercentage: b.Record.WorkPercentage,
			PeriodStart:    b.Record.PeriodStart,
			PeriodEnd:      b.Record.PeriodEnd,
			ResourceCount:  b.Record.ResourceCount,
			Status:         models.RecordStatusActive,
		}
	}

	for i := range b.Documents {
		d := &b.Documents[i]

		class, err := models.ParseDocumentClass(d.Class)
		if err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("documents[%d].class", i), err.Error())
		}

		meta, err := models.DecodeDocumentMetadata(class, d.Metadata)
		if err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("documents[%d].metadata", i), err.Error())
		}

		doc := models.PPDocument{
			RecordID: b.RecordID,
			Class:    class,
			Title:    d.Title,
			Text:     d.Text,
			Metadata: meta,
		}
		if d.ID != nil {
			doc.ID = *d.ID
		}

		if d.WeightFactor != nil {
			doc.WeightFactor = *d.WeightFactor
		}

		req.Documents = append(req.Documents, doc)
	}

	return req, nil
}
