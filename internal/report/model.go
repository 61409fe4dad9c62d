package report

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Format string

const (
	FormatPDF  Format = "PDF"
	FormatXLSX Format = "EXCEL"
	FormatCSV  Format = "CSV"
	FormatJSON Format = "JSON"
)

var extensions = map[Format]string{
	FormatPDF:  ".pdf",
	FormatXLSX: ".xlsx",
	FormatCSV:  ".csv",
	FormatJSON: ".json",
}

// Extension returns the canonical file extension for f, or ".bin" when the
// format is not one the backend is known to produce.
func (f Format) Extension() string {
	if ext, ok := extensions[f]; ok {
		return ext
	}
	return ".bin"
}

// Job is a report-generation job as reported by the backend. The tracker
// never mutates one; it only observes status transitions.
type Job struct {
	ID           string     `json:"id"`
	Status       Status     `json:"status"`
	ReportType   string     `json:"reportType"`
	ReportName   string     `json:"reportName,omitempty"`
	Format       Format     `json:"format"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Label is the human-readable name used in notifications and filenames.
func (j *Job) Label() string {
	if j.ReportName != "" {
		return j.ReportName
	}
	if j.ReportType != "" {
		return TitleCase(j.ReportType)
	}
	return "Report"
}

// Selection is the set of parameters a user picked for a new report.
type Selection struct {
	ReportType string            `json:"reportType"`
	ReportName string            `json:"reportName,omitempty"`
	Format     Format            `json:"format,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

func (s *Selection) Validate() error {
	if s.ReportType == "" {
		return errors.New("reportType must not be empty")
	}
	if s.Format == "" {
		s.Format = FormatPDF
	}
	if _, ok := extensions[s.Format]; !ok {
		return fmt.Errorf("format %q must be one of: PDF, EXCEL, CSV, JSON", s.Format)
	}
	return nil
}

// Page is one window of the report history.
type Page struct {
	Jobs  []Job `json:"data"`
	Total int   `json:"total"`
}

// Pagination describes the visible window of the history list.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Page returns the 1-based page number of the window.
func (p Pagination) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// PaginationFor converts a 1-based page and a page size into a window.
// Out-of-range values are clamped.
func PaginationFor(page, pageSize int) Pagination {
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page < 1 {
		page = 1
	}
	return Pagination{Limit: pageSize, Offset: (page - 1) * pageSize}
}
