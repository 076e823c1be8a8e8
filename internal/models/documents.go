package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidDocumentClass is returned when a document class string is not recognized by ParseDocumentClass.
var ErrInvalidDocumentClass = errors.New("invalid document class")

// DocumentClass tags a source document. Each class has its own metadata shape.
type DocumentClass string

// Document classes.
const (
	DocumentClassNarrative        DocumentClass = "narrative"
	DocumentClassStatementOfWork  DocumentClass = "pws_sow"
	DocumentClassQASP             DocumentClass = "qasp"
	DocumentClassGovernmentReview DocumentClass = "government_review"
	DocumentClassCPARS            DocumentClass = "cpars"
	DocumentClassOther            DocumentClass = "other"
)

// defaultWeightFactors rank document classes for truncation. Narrative is weighted highest.
var defaultWeightFactors = map[DocumentClass]float64{
	DocumentClassNarrative:        1.0,
	DocumentClassStatementOfWork:  0.8,
	DocumentClassCPARS:            0.7,
	DocumentClassGovernmentReview: 0.6,
	DocumentClassQASP:             0.5,
	DocumentClassOther:            0.3,
}

// ParseDocumentClass converts s (case-insensitive; "pws", "sow", "pws/sow" accepted) to a DocumentClass.
func ParseDocumentClass(s string) (DocumentClass, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "pws", "sow", "pws/sow", "pws_sow":
		return DocumentClassStatementOfWork, nil
	case "government-review", "government_review", "gov_review":
		return DocumentClassGovernmentReview, nil
	}

	class := DocumentClass(norm)
	if _, ok := defaultWeightFactors[class]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentClass, s)
	}

	return class, nil
}

// DefaultWeightFactor returns the truncation weight for a class.
func (c DocumentClass) DefaultWeightFactor() float64 {
	if w, ok := defaultWeightFactors[c]; ok {
		return w
	}

	return defaultWeightFactors[DocumentClassOther]
}

// DocumentMetadata is the per-class metadata variant of a PPDocument.
type DocumentMetadata interface {
	DocumentClass() DocumentClass
}

// NarrativeMetadata describes a past-performance narrative write-up.
type NarrativeMetadata struct {
	Author  string `json:"author,omitempty"`
	Section string `json:"section,omitempty"`
}

// StatementOfWorkMetadata describes a PWS or SOW.
type StatementOfWorkMetadata struct {
	Agency    string   `json:"agency,omitempty"`
	TaskAreas []string `json:"task_areas,omitempty"`
}

// QASPMetadata describes a quality assurance surveillance plan.
type QASPMetadata struct {
	PerformanceStandards   []string `json:"performance_standards,omitempty"`
	AcceptableQualityLevel string   `json:"acceptable_quality_level,omitempty"`
}

// GovernmentReviewMetadata describes an informal government review or reference.
type GovernmentReviewMetadata struct {
	Reviewer   string     `json:"reviewer,omitempty"`
	Rating     string     `json:"rating,omitempty"`
	ReviewDate *time.Time `json:"review_date,omitempty"`
}

// CPARSMetadata carries CPARS evaluation ratings.
type CPARSMetadata struct {
	Quality     string     `json:"quality,omitempty"`
	Schedule    string     `json:"schedule,omitempty"`
	CostControl string     `json:"cost_control,omitempty"`
	Management  string     `json:"management,omitempty"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
}

// OtherMetadata is the open variant for documents of unknown class.
type OtherMetadata struct {
	Fields map[string]any `json:"fields,omitempty"`
}

func (NarrativeMetadata) DocumentClass() DocumentClass        { return DocumentClassNarrative }
func (StatementOfWorkMetadata) DocumentClass() DocumentClass  { return DocumentClassStatementOfWork }
func (QASPMetadata) DocumentClass() DocumentClass             { return DocumentClassQASP }
func (GovernmentReviewMetadata) DocumentClass() DocumentClass { return DocumentClassGovernmentReview }
func (CPARSMetadata) DocumentClass() DocumentClass            { return DocumentClassCPARS }
func (OtherMetadata) DocumentClass() DocumentClass            { return DocumentClassOther }

// DecodeDocumentMetadata decodes raw JSON into the metadata variant for class.
// Empty input yields the zero value of the variant. Unknown keys in the other variant are kept.
func DecodeDocumentMetadata(class DocumentClass, raw json.RawMessage) (DocumentMetadata, error) {
	raw = bytes.TrimSpace(raw)
	empty := len(raw) == 0 || bytes.Equal(raw, []byte("null"))

	switch class {
	case DocumentClassNarrative:
		return decodeVariant[NarrativeMetadata](raw, empty)
	case DocumentClassStatementOfWork:
		return decodeVariant[StatementOfWorkMetadata](raw, empty)
	case DocumentClassQASP:
		return decodeVariant[QASPMetadata](raw, empty)
	case DocumentClassGovernmentReview:
		return decodeVariant[GovernmentReviewMetadata](raw, empty)
	case DocumentClassCPARS:
		return decodeVariant[CPARSMetadata](raw, empty)
	default:
		other := OtherMetadata{}
		if empty {
			return other, nil
		}

		if err := json.Unmarshal(raw, &other.Fields); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", DocumentClassOther, err)
		}

		return other, nil
	}
}

func decodeVariant[T DocumentMetadata](raw json.RawMessage, empty bool) (DocumentMetadata, error) {
	var v T
	if empty {
		return v, nil
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", v.DocumentClass(), err)
	}

	return v, nil
}

// EncodeDocumentMetadata encodes the variant payload (without the class tag).
func EncodeDocumentMetadata(m DocumentMetadata) (json.RawMessage, error) {
	if m == nil {
		return json.RawMessage("{}"), nil
	}

	if other, ok := m.(OtherMetadata); ok {
		if other.Fields == nil {
			return json.RawMessage("{}"), nil
		}

		b, err := json.Marshal(other.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode other metadata: %w", err)
		}

		return b, nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", m.DocumentClass(), err)
	}

	return b, nil
}

// PPDocument is one source document of a past-performance record.
type PPDocument struct {
	ID           uuid.UUID        `json:"id"`
	RecordID     uuid.UUID        `json:"record_id"`
	Class        DocumentClass    `json:"class"`
	Title        string           `json:"title"`
	Text         string           `json:"text"`
	WeightFactor float64          `json:"weight_factor"`
	Metadata     DocumentMetadata `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
}

type ppDocumentJSON struct {
	ID           uuid.UUID       `json:"id"`
	RecordID     uuid.UUID       `json:"record_id"`
	Class        string          `json:"class"`
	Title        string          `json:"title"`
	Text         string          `json:"text"`
	WeightFactor float64         `json:"weight_factor"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MarshalJSON writes the document with its metadata variant under "metadata".
func (d PPDocument) MarshalJSON() ([]byte, error) {
	meta, err := EncodeDocumentMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(ppDocumentJSON{
		ID:           d.ID,
		RecordID:     d.RecordID,
		Class:        string(d.Class),
		Title:        d.Title,
		Text:         d.Text,
		WeightFactor: d.WeightFactor,
		Metadata:     meta,
		CreatedAt:    d.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	return b, nil
}

// UnmarshalJSON reads the class tag first and decodes metadata into the matching variant.
// Unrecognized classes decode as DocumentClassOther.
func (d *PPDocument) UnmarshalJSON(data []byte) error {
	var raw ppDocumentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}

	class, err := ParseDocumentClass(raw.Class)
	if err != nil {
		class = DocumentClassOther
	}

	meta, err := DecodeDocumentMetadata(class, raw.Metadata)
	if err != nil {
		return err
	}

	*d = PPDocument{
		ID:           raw.ID,
		RecordID:     raw.RecordID,
		Class:        class,
		Title:        raw.Title,
		Text:         raw.Text,
		WeightFactor: raw.WeightFactor,
		Metadata:     meta,
		CreatedAt:    raw.CreatedAt,
	}

	return nil
}

// EffectiveWeight returns WeightFactor, falling back to the class default when unset.
func (d *PPDocument) EffectiveWeight() float64 {
	if d.WeightFactor > 0 {
		return d.WeightFactor
	}

	return d.Class.DefaultWeightFactor()
}
