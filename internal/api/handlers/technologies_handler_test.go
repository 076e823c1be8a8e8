package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
)

type mockTechnologiesService struct {
	listing     *service.TechnologyListing
	approveFunc func(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error)
	rejectFunc  func(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error)
}

func (m *mockTechnologiesService) List() *service.TechnologyListing {
	if m.listing != nil {
		return m.listing
	}

	return &service.TechnologyListing{Categories: models.AllCategories()}
}

func (m *mockTechnologiesService) Approve(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error) {
	return m.approveFunc(ctx, ids)
}

func (m *mockTechnologiesService) Reject(ctx context.Context, ids []uuid.UUID) ([]models.Technology, error) {
	return m.rejectFunc(ctx, ids)
}

func TestTechnologiesHandler_List(t *testing.T) {
	mock := &mockTechnologiesService{
		listing: &service.TechnologyListing{
			Approved: []models.Technology{
				{ID: uuid.New(), Key: "aws", Name: "AWS", Category: models.CategoryCloud, State: models.ApprovalApproved, UsageCount: 7},
				{ID: uuid.New(), Key: "java", Name: "Java", Category: models.CategoryLanguage, State: models.ApprovalApproved},
			},
			PendingApproval: []models.Technology{
				{ID: uuid.New(), Key: "kubeflow", Name: "Kubeflow", Category: models.CategoryTool, State: models.ApprovalPending},
			},
			Categories: models.AllCategories(),
		},
	}
	handler := NewTechnologiesHandler(mock)

	t.Run("all", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.List(rec, httptest.NewRequest(http.MethodGet, "/v1/technologies", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp TechnologyListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Approved, 2)
		require.Len(t, resp.PendingApproval, 1)
		assert.Equal(t, "kubeflow", resp.PendingApproval[0].Key)
		assert.Equal(t, []string{}, resp.PendingApproval[0].Aliases)
		assert.Len(t, resp.Categories, len(models.AllCategories()))
		assert.Equal(t, int64(7), resp.Approved[0].UsageCount)
	})

	t.Run("category filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.List(rec, httptest.NewRequest(http.MethodGet, "/v1/technologies?category=cloud", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp TechnologyListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Approved, 1)
		assert.Equal(t, "aws", resp.Approved[0].Key)
		assert.Empty(t, resp.PendingApproval)
	})

	t.Run("unknown category", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.List(rec, httptest.NewRequest(http.MethodGet, "/v1/technologies?category=hardware", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTechnologiesHandler_Approve(t *testing.T) {
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		var got []uuid.UUID

		handler := NewTechnologiesHandler(&mockTechnologiesService{
			approveFunc: func(_ context.Context, ids []uuid.UUID) ([]models.Technology, error) {
				got = ids

				return []models.Technology{{ID: id, Key: "kubeflow", Name: "Kubeflow", State: models.ApprovalApproved}}, nil
			},
		})

		rec := postJSON(t, handler.Approve, "/v1/technologies/approve", `{"technologyIDs":["`+id.String()+`"]}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []uuid.UUID{id}, got)

		var resp TechnologyStateResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Updated, 1)
		assert.Equal(t, "approved", resp.Updated[0].State)
	})

	t.Run("empty list returns 400", func(t *testing.T) {
		handler := NewTechnologiesHandler(&mockTechnologiesService{})

		rec := postJSON(t, handler.Approve, "/v1/technologies/approve", `{"technologyIDs":[]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		handler := NewTechnologiesHandler(&mockTechnologiesService{})

		rec := postJSON(t, handler.Approve, "/v1/technologies/approve", `{"technologyIDs":["not-a-uuid"]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown technology returns 404", func(t *testing.T) {
		handler := NewTechnologiesHandler(&mockTechnologiesService{
			approveFunc: func(context.Context, []uuid.UUID) ([]models.Technology, error) {
				return nil, apperrors.NewNotFoundError("technology", "technology not found")
			},
		})

		rec := postJSON(t, handler.Approve, "/v1/technologies/approve", `{"technologyIDs":["`+id.String()+`"]}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTechnologiesHandler_Reject(t *testing.T) {
	id := uuid.New()

	handler := NewTechnologiesHandler(&mockTechnologiesService{
		rejectFunc: func(context.Context, []uuid.UUID) ([]models.Technology, error) {
			return nil, apperrors.NewConflictError("technology aws is approved and cannot be rejected")
		},
	})

	rec := postJSON(t, handler.Reject, "/v1/technologies/reject", `{"technologyIDs":["`+id.String()+`"]}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
