package history

import (
	"encoding/json"
	"time"
)

// Status values of a job record
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record is one finished tool job
type Record struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	Tool         string    `gorm:"size:64;index" json:"tool"`
	Input        string    `gorm:"type:text" json:"input"`
	Output       string    `gorm:"type:text" json:"output,omitempty"`
	Status       string    `gorm:"size:16" json:"status"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	OriginalSize int64     `json:"original_size"`
	OutputSize   int64     `json:"output_size"`
	Ratio        float64   `json:"ratio"`
	TargetSizeKB int       `json:"target_size_kb,omitempty"`
	Quality      float64   `json:"quality,omitempty"`
	Scale        float64   `json:"scale,omitempty"`
	Tier         string    `gorm:"size:16" json:"tier,omitempty"`
	SourcePages  int       `json:"source_pages,omitempty"`
	OutputPages  int       `json:"output_pages,omitempty"`
	Passes       int       `json:"passes,omitempty"`
	SkippedJSON  string    `gorm:"type:text" json:"-"`
}

// SkippedPages returns the 1-based page numbers dropped during the job
func (r *Record) SkippedPages() []int {
	if r.SkippedJSON == "" {
		return nil
	}
	var pages []int
	if err := json.Unmarshal([]byte(r.SkippedJSON), &pages); err != nil {
		return nil
	}
	return pages
}

// SetSkippedPages stores the dropped page numbers
func (r *Record) SetSkippedPages(pages []int) error {
	if len(pages) == 0 {
		r.SkippedJSON = ""
		return nil
	}
	data, err := json.Marshal(pages)
	if err != nil {
		return err
	}
	r.SkippedJSON = string(data)
	return nil
}

// Totals aggregates all successful jobs
type Totals struct {
	Jobs       int64 `json:"jobs"`
	Failed     int64 `json:"failed"`
	BytesIn    int64 `json:"bytes_in"`
	BytesOut   int64 `json:"bytes_out"`
	BytesSaved int64 `json:"bytes_saved"`
}
