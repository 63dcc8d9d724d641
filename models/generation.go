package models

import (
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

// Generation statuses. pending means accepted and debited but not yet
// submitted or acknowledged by the pipeline.
const (
	GenerationPending    = "pending"
	GenerationProcessing = "processing"
	GenerationCompleted  = "completed"
	GenerationFailed     = "failed"
)

// Upload is one selfie on disk. The file itself is AES-GCM encrypted at
// rest (store package); Path points at the ciphertext.
type Upload struct {
	gorm.Model
	PersonID    uint   `json:"person_id" gorm:"index"`
	Path        string `json:"-"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256" gorm:"column:sha256"`
}

// Generation tracks one pipeline job from debit to delivery.
type Generation struct {
	gorm.Model
	UUID          string     `json:"uuid" gorm:"index:idx_generation_uuid,unique"`
	PersonID      uint       `json:"person_id" gorm:"index"`
	BilledTo      uint       `json:"billed_to" gorm:"index"`
	UploadID      uint       `json:"upload_id"`
	StyleID       uint       `json:"style_id" gorm:"index"`
	Status        string     `json:"status" gorm:"index;default:pending"`
	PipelineJobID string     `json:"-" gorm:"index"`
	ResultURLs    string     `json:"-"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreditsSpent  int64      `json:"credits_spent"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Results decodes the stored result URL list.
func (g Generation) Results() []string {
	if g.ResultURLs == "" {
		return nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(g.ResultURLs), &urls); err != nil {
		log.Printf("bad result urls on generation %s: %v", g.UUID, err)
		return nil
	}
	return urls
}

// SetResults encodes and stores the result URL list.
func (g *Generation) SetResults(urls []string) error {
	data, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	g.ResultURLs = string(data)
	return nil
}

// GetGenerationByUUID fetches a generation by its public id.
func GetGenerationByUUID(uuid string, db *gorm.DB) (Generation, error) {
	var g Generation
	err := db.First(&g, "uuid = ?", uuid).Error
	return g, err
}

// GetGenerationByJobID resolves the generation behind a pipeline job.
func GetGenerationByJobID(jobID string, db *gorm.DB) (Generation, error) {
	var g Generation
	err := db.First(&g, "pipeline_job_id = ?", jobID).Error
	return g, err
}

// Terminal reports whether the generation reached a final state. Callback
// handlers use it to ignore late or duplicate transitions.
func (g Generation) Terminal() bool {
	return g.Status == GenerationCompleted || g.Status == GenerationFailed
}
