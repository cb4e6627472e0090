package domain

import "time"

// InputKind enumerates the supported generation request shapes.
type InputKind string

const (
	InputTextToVideo  InputKind = "text_to_video"
	InputImageToVideo InputKind = "image_to_video"
	InputTextToImage  InputKind = "text_to_image"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further automatic transition can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ImagePayload carries the conditioning image for image-to-video requests.
type ImagePayload struct {
	Data []byte
	MIME string
	Name string
}

// Asset is a reference to one generated artifact. Data holds inline bytes
// returned by a provider until they are persisted; the stored copy of a job
// result never retains them.
type Asset struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
	Data   []byte `json:"-"`
}

// JobSpec captures the immutable request parameters supplied at enqueue time.
type JobSpec struct {
	Prompt      string
	Model       string
	AspectRatio string
	OutputCount int
	Kind        InputKind
	Locale      string
	Image       *ImagePayload
}

// Job tracks one generation request through its status lifecycle.
type Job struct {
	ID           string
	Prompt       string
	Model        string
	AspectRatio  string
	OutputCount  int
	Kind         InputKind
	Locale       string
	Image        *ImagePayload
	Status       JobStatus
	RetryCount   int
	Results      []Asset
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
