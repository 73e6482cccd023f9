package webhook

import (
	"time"

	"cardamage/internal/storage"
)

// Image is one stored photo as described to the analysis workflow.
type Image struct {
	URL      string          `json:"url"`
	Filename string          `json:"filename"`
	Size     int64           `json:"size"`
	Type     string          `json:"type"`
	BlobData *storage.Object `json:"blobData,omitempty"`
}

// Notification is the JSON body posted to the webhook. Paired intake fills
// AssessmentID and both images; a single upload fills ImageURL and its
// siblings.
type Notification struct {
	AssessmentID string          `json:"assessmentId,omitempty"`
	BeforeImage  *Image          `json:"beforeImage,omitempty"`
	AfterImage   *Image          `json:"afterImage,omitempty"`
	ImageURL     string          `json:"imageUrl,omitempty"`
	Filename     string          `json:"filename,omitempty"`
	Type         string          `json:"type,omitempty"`
	BlobData     *storage.Object `json:"blobData,omitempty"`
	UploadedAt   time.Time       `json:"uploadedAt"`
	Status       string          `json:"status,omitempty"`
}

const StatusUploaded = "uploaded"
