package models

import "time"

// Request status values. The lifecycle is:
//
//	pending → submitting → {submitted | failed}
//	submitted → {in_progress, completed, cancelled}
//	failed → pending (operator retry)
//
// completed and cancelled are terminal. Transitions out of submitted are
// driven by external status updates, never by the submission path itself.
const (
	StatusPending    = "pending"
	StatusSubmitting = "submitting"
	StatusSubmitted  = "submitted"
	StatusFailed     = "failed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ActiveStatuses are the states the status poller sweeps.
func ActiveStatuses() []string {
	return []string{StatusSubmitted, StatusInProgress}
}

// Request is a locate request filed with a notification district. The store
// owns the row; the submission path mutates it only through store updates.
type Request struct {
	ID string `gorm:"primaryKey;size:36"`

	// Contact
	ContactName string `gorm:"size:128;not null"`
	CompanyName string `gorm:"size:128"`
	Phone       string `gorm:"size:32;not null"`
	Email       string `gorm:"size:128;not null"`

	// Work location
	Street  string `gorm:"size:256;not null"`
	City    string `gorm:"size:128;not null"`
	State   string `gorm:"size:2;not null"`
	ZipCode string `gorm:"size:10;not null"`
	County  string `gorm:"size:128"`

	// Work details
	WorkType        string    `gorm:"size:64;not null"`
	WorkDescription string    `gorm:"type:text;not null"`
	StartDate       time.Time `gorm:"not null"`
	DurationDays    int       `gorm:"default:1"`
	Depth           string    `gorm:"size:32"`

	// Work area
	NearestCrossStreet  string `gorm:"size:256"`
	WorkAreaLength      string `gorm:"size:16"`
	WorkAreaWidth       string `gorm:"size:16"`
	MarkedArea          bool   `gorm:"default:false"`
	MarkingInstructions string `gorm:"type:text"`

	// Flags
	ExplosivesUsed bool   `gorm:"default:false"`
	EmergencyWork  bool   `gorm:"default:false"`
	PermitNumber   string `gorm:"size:64"`

	// Routing and outcome
	DistrictID         string `gorm:"size:32;not null;index"`
	SubmissionMethod   string `gorm:"size:16"`
	Status             string `gorm:"size:16;default:pending;index"`
	TicketNumber       string `gorm:"size:64"`
	ConfirmationNumber string `gorm:"size:64"`
	ResponseData       string `gorm:"type:text"` // JSON blob from the winning channel
	LastError          string `gorm:"type:text"`
	RetryCount         int    `gorm:"default:0"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time

	Updates []StatusUpdate `gorm:"foreignKey:RequestID"`
}

// StatusUpdate is one append-only audit entry for a request. Rows are never
// mutated or deleted; the Request's status/ticket fields are a derived
// most-recent-wins projection maintained alongside this log.
type StatusUpdate struct {
	ID        string    `gorm:"primaryKey;size:36"`
	RequestID string    `gorm:"size:36;not null;index"`
	Kind      string    `gorm:"size:32;not null"`
	Details   string    `gorm:"type:text"` // JSON map
	CreatedAt time.Time `gorm:"index"`
}
