// Package main provides a CLI tool to load past-performance records from a CSV file into the API.
// Each row becomes one POST /v1/ingest; the API processes the upload asynchronously.
//
// Usage:
//
//	go run ./scripts/ingest-csv -file /path/to/records.csv -api-url http://localhost:8080 -api-key YOUR_API_KEY
//
// The header row names the columns; order does not matter. Recognized columns:
//
//	record_id, name, contract_number, customer, customer_type, contract_value, role,
//	work_percentage, period_start, period_end, resource_count, unified_text
//
// Every other column whose name is a document class (narrative, pws, sow, qasp, cpars,
// government_review, other) is sent as a document of that class.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/handlers"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/models"
)

// recordNamespace derives stable record IDs from contract numbers, so re-running a file
// uploads new versions of the same records.
var recordNamespace = uuid.MustParse("6f1d7f5e-3c1a-4f53-9a8e-5b2f0c3d9e41")

var (
	errMissingName = errors.New("missing required column value: name")
	errMissingText = errors.New("missing required column value: unified_text")
)

// Config holds the CLI configuration
type Config struct {
	FilePath   string
	APIBaseURL string
	APIKey     string
	DelayMS    int
	RetryMax   int
	DryRun     bool
}

// Stats tracks ingestion statistics
type Stats struct {
	TotalRows       int
	Skipped         int
	SuccessfulPosts int
	FailedPosts     int
}

func main() {
	cfg := parseFlags()

	if cfg.FilePath == "" {
		fmt.Println("Error: -file is required")
		flag.Usage()
		os.Exit(1)
	}

	if cfg.APIKey == "" && !cfg.DryRun {
		fmt.Println("Error: -api-key is required")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("Past performance CSV ingestion\n")
	fmt.Printf("   API URL: %s\n", cfg.APIBaseURL)
	fmt.Printf("   CSV File: %s\n", cfg.FilePath)
	fmt.Printf("   Delay: %dms between requests\n", cfg.DelayMS)

	if cfg.DryRun {
		fmt.Printf("   DRY RUN MODE - No actual API calls will be made\n")
	}

	fmt.Println()

	stats, err := processCSV(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Ingestion Summary")
	fmt.Printf("   Total rows processed:  %d\n", stats.TotalRows)
	fmt.Printf("   Skipped (invalid):     %d\n", stats.Skipped)
	fmt.Printf("   Accepted:              %d\n", stats.SuccessfulPosts)
	fmt.Printf("   Failed:                %d\n", stats.FailedPosts)

	if stats.FailedPosts > 0 {
		os.Exit(1)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.FilePath, "file", "", "Path to CSV file (required)")
	flag.StringVar(&cfg.APIBaseURL, "api-url", "http://localhost:8080", "API base URL")
	flag.StringVar(&cfg.APIKey, "api-key", "", "API key for authentication (required unless -dry-run)")
	flag.IntVar(&cfg.DelayMS, "delay", 100, "Delay in milliseconds between API calls")
	flag.IntVar(&cfg.RetryMax, "retries", 3, "Retries per row on 5xx responses (503 honors Retry-After)")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Parse CSV but don't make API calls")

	flag.Parse()

	return cfg
}

func processCSV(cfg Config) (Stats, error) {
	stats := Stats{}

	file, err := os.Open(cfg.FilePath)
	if err != nil {
		return stats, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable field counts
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}

	columns := indexHeader(header)
	if _, ok := columns["name"]; !ok {
		return stats, errors.New(`header has no "name" column`)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	for rowNum := 2; ; rowNum++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			fmt.Printf("   Row %d: error reading: %v\n", rowNum, err)
			stats.Skipped++

			continue
		}

		stats.TotalRows++

		body, err := bodyFromRow(columns, row)
		if err != nil {
			fmt.Printf("   [SKIP] Row %d: %v\n", rowNum, err)
			stats.Skipped++

			continue
		}

		if cfg.DryRun {
			fmt.Printf("   [DRY] Row %d: %s (%d document(s))\n", rowNum, body.Record.Name, len(body.Documents))
			stats.SuccessfulPosts++

			continue
		}

		if err := postIngest(client, cfg, body); err != nil {
			fmt.Printf("   x Row %d (%s): %v\n", rowNum, body.Record.Name, err)
			stats.FailedPosts++
		} else {
			fmt.Printf("   ok Row %d: %s -> %s\n", rowNum, body.Record.Name, body.RecordID)
			stats.SuccessfulPosts++
		}

		time.Sleep(time.Duration(cfg.DelayMS) * time.Millisecond)
	}

	return stats, nil
}

func indexHeader(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}

	return columns
}

func bodyFromRow(columns map[string]int, row []string) (*handlers.IngestBody, error) {
	get := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}

		return strings.TrimSpace(row[i])
	}

	record := &handlers.RecordBody{
		Name:           get("name"),
		ContractNumber: get("contract_number"),
		Customer:       get("customer"),
		CustomerType:   get("customer_type"),
		Role:           strings.ToLower(get("role")),
	}
	if record.Name == "" {
		return nil, errMissingName
	}

	var err error

	if record.ContractValue, err = parseFloat(get("contract_value")); err != nil {
		return nil, fmt.Errorf("contract_value: %w", err)
	}

	if v := get("work_percentage"); v != "" {
		pct, err := parseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("work_percentage: %w", err)
		}

		record.WorkPercentage = &pct
	}

	if v := get("resource_count"); v != "" {
		if record.ResourceCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("resource_count: %w", err)
		}
	}

	if record.PeriodStart, err = parseDate(get("period_start")); err != nil {
		return nil, fmt.Errorf("period_start: %w", err)
	}

	if record.PeriodEnd, err = parseDate(get("period_end")); err != nil {
		return nil, fmt.Errorf("period_end: %w", err)
	}

	body := &handlers.IngestBody{
		RecordID:    recordID(get("record_id"), record),
		Record:      record,
		UnifiedText: get("unified_text"),
	}

	names := slices.SortedFunc(maps.Keys(columns), func(a, b string) int { return columns[a] - columns[b] })
	for _, name := range names {
		class, err := models.ParseDocumentClass(name)
		if err != nil {
			continue
		}

		if text := get(name); text != "" {
			body.Documents = append(body.Documents, handlers.DocumentBody{
				Class: string(class),
				Title: name,
				Text:  text,
			})
		}
	}

	if body.UnifiedText == "" {
		body.UnifiedText = joinDocuments(body.Documents)
	}

	if body.UnifiedText == "" {
		return nil, errMissingText
	}

	return body, nil
}

// recordID uses the record_id column when present; otherwise the ID is derived from the contract
// number, or from the name when there is none.
func recordID(raw string, record *handlers.RecordBody) uuid.UUID {
	if id, err := uuid.Parse(raw); err == nil {
		return id
	}

	key := record.ContractNumber
	if key == "" {
		key = record.Name
	}

	return uuid.NewSHA1(recordNamespace, []byte(strings.ToLower(key)))
}

func joinDocuments(docs []handlers.DocumentBody) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Text)
	}

	return strings.Join(parts, "\n\n")
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}

	return strconv.ParseFloat(strings.NewReplacer("$", "", ",", "").Replace(s), 64)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	for _, layout := range []string{time.DateOnly, time.RFC3339, "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}

	return nil, fmt.Errorf("unrecognized date %q", s)
}

func postIngest(client *retryablehttp.Client, cfg Config, body *handlers.IngestBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, cfg.APIBaseURL+"/v1/ingest", payload)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
