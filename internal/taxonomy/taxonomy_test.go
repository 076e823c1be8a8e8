package taxonomy

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// MockStore is a mock implementation of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateTechnology(ctx context.Context, tech *models.Technology) error {
	args := m.Called(ctx, tech)

	return args.Error(0)
}

func (m *MockStore) UpdateTechnologyState(ctx context.Context, id uuid.UUID, state models.ApprovalState) error {
	args := m.Called(ctx, id, state)

	return args.Error(0)
}

func (m *MockStore) IncrementTechnologyUsage(ctx context.Context, counts map[uuid.UUID]int64) error {
	args := m.Called(ctx, counts)

	return args.Error(0)
}

func seeded(t *testing.T) *Taxonomy {
	t.Helper()

	tax := New(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	_, err := Seed(context.Background(), tax, DefaultVocabulary())
	require.NoError(t, err)

	return tax
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Node.js", "nodejs"},
		{"NodeJS", "nodejs"},
		{"node-js", "nodejs"},
		{".NET", "dotnet"},
		{"ASP.NET", "aspnet"},
		{"CI/CD", "ci cd"},
		{"C#", "c#"},
		{"C++", "c++"},
		{"  Spring   Boot ", "spring boot"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTerm(tt.in))
		})
	}

	assert.Equal(t, "spring-boot", Slug("Spring Boot"))
}

func TestExtractTechnologies(t *testing.T) {
	tax := seeded(t)
	ext := NewExtractor(tax)

	t.Run("canonical names with version and repeat boosts", func(t *testing.T) {
		matches := ext.ExtractTechnologies("Built on Java 17 with Spring Boot. Java services ran on AWS.")
		require.Len(t, matches, 3)

		assert.Equal(t, "java", matches[0].TechnologyKey)
		assert.Equal(t, "17", matches[0].Version)
		assert.InDelta(t, 0.9, matches[0].Confidence, 1e-9)
		assert.Contains(t, matches[0].ContextSnippet, "Java 17")

		assert.Equal(t, "spring-boot", matches[1].TechnologyKey)
		assert.InDelta(t, 0.75, matches[1].Confidence, 1e-9)
		assert.Empty(t, matches[1].Version)

		assert.Equal(t, "aws", matches[2].TechnologyKey)
	})

	t.Run("alias match scores below canonical", func(t *testing.T) {
		matches := ext.ExtractTechnologies("Workloads were deployed to K8s clusters.")
		require.Len(t, matches, 1)
		assert.Equal(t, "kubernetes", matches[0].TechnologyKey)
		assert.InDelta(t, 0.7, matches[0].Confidence, 1e-9)
	})

	t.Run("punctuation insensitive", func(t *testing.T) {
		matches := ext.ExtractTechnologies("Front end in ReactJS and back end on node-js; legacy ASP.NET retired.")
		keys := make([]string, 0, len(matches))
		for _, m := range matches {
			keys = append(keys, m.TechnologyKey)
		}

		assert.Equal(t, []string{"react", "nodejs", "dotnet"}, keys)
	})

	t.Run("highest version wins", func(t *testing.T) {
		matches := ext.ExtractTechnologies("Migrated from Java 8 to Java 17.0.2, then Java 11 tooling.")
		require.Len(t, matches, 1)
		assert.Equal(t, "17.0.2", matches[0].Version)
		assert.InDelta(t, 0.95, matches[0].Confidence, 1e-9)
	})

	t.Run("multi-word terms do not span punctuation", func(t *testing.T) {
		matches := ext.ExtractTechnologies("We used Spring. Boot camps trained staff.")
		require.Len(t, matches, 1)
		assert.Equal(t, "spring", matches[0].TechnologyKey)
	})

	t.Run("deterministic", func(t *testing.T) {
		text := "Python and Terraform on Azure with Agile ceremonies, Python 3.11 throughout."
		assert.Equal(t, ext.Extract(text), ext.Extract(text))
	})
}

func TestProposalThreshold(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold is discarded", func(t *testing.T) {
		tax := seeded(t)
		ext := NewExtractor(tax)

		result := ext.Extract("Logs were forwarded by the Fluentd tool.")
		var fluentd *Candidate
		for i := range result.Candidates {
			if result.Candidates[i].Name == "Fluentd" {
				fluentd = &result.Candidates[i]
			}
		}

		require.NotNil(t, fluentd)
		assert.InDelta(t, 0.55, fluentd.Confidence, 1e-9)
		assert.Equal(t, models.CategoryTool, fluentd.Category)
		assert.False(t, ext.ShouldPropose(fluentd.Confidence))

		_, created, err := ext.ExtractAndPropose(ctx, "Logs were forwarded by the Fluentd tool.")
		require.NoError(t, err)
		assert.Empty(t, created)
		assert.False(t, tax.IsKnown("Fluentd"))
	})

	t.Run("above threshold creates a pending technology", func(t *testing.T) {
		tax := seeded(t)
		ext := NewExtractor(tax)
		text := "Logs were forwarded by the Fluentd tool. The Fluentd tool scaled, and each Fluentd tool was patched."

		result := ext.Extract(text)
		var confidence float64
		for _, c := range result.Candidates {
			if c.Name == "Fluentd" {
				confidence = c.Confidence
			}
		}

		assert.InDelta(t, 0.65, confidence, 1e-9)
		assert.True(t, ext.ShouldPropose(confidence))

		matches, created, err := ext.ExtractAndPropose(ctx, text)
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, "Fluentd", created[0].Name)
		assert.Equal(t, "fluentd", created[0].Key)
		assert.Equal(t, models.ApprovalPending, created[0].State)
		assert.Equal(t, models.CategoryTool, created[0].Category)

		require.Len(t, matches, 1)
		assert.Equal(t, "fluentd", matches[0].TechnologyKey)

		again, createdAgain, err := ext.ExtractAndPropose(ctx, text)
		require.NoError(t, err)
		assert.Empty(t, createdAgain)
		assert.Equal(t, matches, again)
	})

	t.Run("contract acronyms are never candidates", func(t *testing.T) {
		ext := NewExtractor(seeded(t))
		text := "The IT platform was run by the PMO tool. The IT platform and the PMO tool met each KPI."

		for _, c := range ext.Extract(text).Candidates {
			assert.NotContains(t, []string{"IT", "PMO", "KPI"}, c.Name)
		}
	})

	t.Run("custom threshold", func(t *testing.T) {
		ext := NewExtractor(seeded(t), WithProposalThreshold(0.5))
		assert.True(t, ext.ShouldPropose(0.55))
		assert.False(t, ext.ShouldPropose(0.5))
	})
}

func TestRejectedTechnologies(t *testing.T) {
	ctx := context.Background()
	tax := seeded(t)
	ext := NewExtractor(tax)

	tech, created, err := tax.Propose(ctx, "Fluentd", models.CategoryTool)
	require.NoError(t, err)
	require.True(t, created)

	_, err = tax.SetState(ctx, []uuid.UUID{tech.ID}, models.ApprovalRejected)
	require.NoError(t, err)

	result := ext.Extract("Logs were shipped via the Fluentd tool, and each Fluentd tool and the Fluentd tool ran.")
	assert.Empty(t, result.Matches)
	for _, c := range result.Candidates {
		assert.NotEqual(t, "Fluentd", c.Name)
	}

	_, err = tax.SetState(ctx, []uuid.UUID{tech.ID}, models.ApprovalApproved)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAliasCollision(t *testing.T) {
	ctx := context.Background()

	var logs bytes.Buffer
	tax := New(nil, slog.New(slog.NewTextHandler(&logs, nil)))

	cloud, _, err := tax.Add(ctx, models.Technology{
		Name: "Oracle Cloud", Key: "oracle-cloud", Category: models.CategoryCloud,
		Aliases: []string{"Oracle"}, UsageCount: 3,
	})
	require.NoError(t, err)

	db, _, err := tax.Add(ctx, models.Technology{
		Name: "Oracle Database", Key: "oracle-db", Category: models.CategoryDatabase,
		Aliases: []string{"Oracle"}, UsageCount: 10,
	})
	require.NoError(t, err)

	res, ok := tax.Resolve("ORACLE")
	require.True(t, ok)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, db.ID, res.Technology.ID)
	assert.ElementsMatch(t, []uuid.UUID{cloud.ID, db.ID}, res.Candidates)

	matches := NewExtractor(tax, WithLogger(tax.logger)).ExtractTechnologies("Data migrated to Oracle.")
	require.Len(t, matches, 1)
	assert.Equal(t, "oracle-db", matches[0].TechnologyKey)
	assert.True(t, matches[0].Ambiguous)
	assert.Contains(t, logs.String(), "taxonomy: ambiguous alias")

	// Equal usage falls back to the lower key.
	require.NoError(t, tax.RecordUsage(ctx, map[uuid.UUID]int64{cloud.ID: 7}))

	res, ok = tax.Resolve("oracle")
	require.True(t, ok)
	assert.Equal(t, cloud.ID, res.Technology.ID)
}

func TestSetState(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id is not found", func(t *testing.T) {
		tax := seeded(t)
		_, err := tax.SetState(ctx, []uuid.UUID{uuid.New()}, models.ApprovalApproved)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("persists transitions through the store", func(t *testing.T) {
		store := new(MockStore)
		tax := New(store, nil)

		store.On("CreateTechnology", mock.Anything, mock.Anything).Return(nil)
		tech, _, err := tax.Propose(ctx, "Kafka", models.CategoryPlatform)
		require.NoError(t, err)

		store.On("UpdateTechnologyState", mock.Anything, tech.ID, models.ApprovalApproved).Return(nil)

		updated, err := tax.SetState(ctx, []uuid.UUID{tech.ID}, models.ApprovalApproved)
		require.NoError(t, err)
		require.Len(t, updated, 1)
		assert.Equal(t, models.ApprovalApproved, updated[0].State)

		got, ok := tax.Get(tech.ID)
		require.True(t, ok)
		assert.True(t, got.IsVisible())
		store.AssertExpectations(t)
	})

	t.Run("store failure leaves state unchanged", func(t *testing.T) {
		store := new(MockStore)
		tax := New(store, nil)

		store.On("CreateTechnology", mock.Anything, mock.Anything).Return(nil)
		tech, _, err := tax.Propose(ctx, "Kafka", models.CategoryPlatform)
		require.NoError(t, err)

		store.On("UpdateTechnologyState", mock.Anything, tech.ID, models.ApprovalRejected).Return(errors.New("db down"))

		_, err = tax.SetState(ctx, []uuid.UUID{tech.ID}, models.ApprovalRejected)
		require.Error(t, err)

		got, _ := tax.Get(tech.ID)
		assert.Equal(t, models.ApprovalPending, got.State)
	})
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		in   string
		want Requirement
	}{
		{"Java 17+", Requirement{Term: "Java", Version: "17", AtLeast: true}},
		{"Java 17", Requirement{Term: "Java", Version: "17"}},
		{"Python v3.11", Requirement{Term: "Python", Version: "3.11"}},
		{"PostgreSQL 14 or later", Requirement{Term: "PostgreSQL", Version: "14", AtLeast: true}},
		{"Node.js 18 OR HIGHER", Requirement{Term: "Node.js", Version: "18", AtLeast: true}},
		{"Kubernetes v1.27 and above", Requirement{Term: "Kubernetes", Version: "1.27", AtLeast: true}},
		{"Spring Boot", Requirement{Term: "Spring Boot"}},
		{"Java", Requirement{Term: "Java"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRequirement(tt.in))
		})
	}
}

func TestRequirementSatisfies(t *testing.T) {
	tests := []struct {
		req  string
		have string
		want bool
	}{
		{"Java 17+", "17", true},
		{"Java 17+", "21", true},
		{"Java 17+", "8", false},
		{"Java 17+", "", false},
		{"Java 17", "17.0.2", true},
		{"Java 17", "11", false},
		{"Python 3.11", "3.9", false},
		{"Java", "8", true},
	}

	for _, tt := range tests {
		t.Run(tt.req+"/"+tt.have, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRequirement(tt.req).Satisfies(tt.have))
		})
	}
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, CompareVersions("17", "17.0"))
	assert.Equal(t, -1, CompareVersions("8", "17"))
	assert.Equal(t, 1, CompareVersions("3.11", "3.9"))
	assert.Equal(t, -1, CompareVersions("", "1"))
	assert.Equal(t, 1, CompareVersions("1", ""))
}
