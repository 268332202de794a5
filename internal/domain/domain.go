package domain

type Idea struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Status         string `json:"status" enum:"draft,validating,validated,registered"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	LastModifiedAt string `json:"last_modified_at" format:"date-time"`
}

// ValidationResult is one scored assessment of an idea. Rows are immutable;
// re-validating appends a new row and keeps the old ones for history.
// The title/description pair is frozen at validation time, so later edits to
// the idea never alter past results.
type ValidationResult struct {
	ID                        string   `json:"id"`
	OwnerID                   string   `json:"owner_id"`
	IdeaID                    string   `json:"idea_id"`
	IdeaTitle                 string   `json:"idea_title"`
	IdeaDescription           string   `json:"idea_description"`
	OverallScore              int      `json:"overall_score" minimum:"0" maximum:"100"`
	MarketPotentialScore      int      `json:"market_potential_score" minimum:"0" maximum:"100"`
	FeasibilityScore          int      `json:"feasibility_score" minimum:"0" maximum:"100"`
	CompetitiveLandscapeScore int      `json:"competitive_landscape_score" minimum:"0" maximum:"100"`
	Summary                   string   `json:"summary"`
	Strengths                 []string `json:"strengths,omitempty"`
	Challenges                []string `json:"challenges,omitempty"`
	Recommendations           []string `json:"recommendations,omitempty"`
	NextSteps                 []string `json:"next_steps,omitempty"`
	CreatedAt                 string   `json:"created_at" format:"date-time"`
}

// RegistrationTask is one checklist item generated after validation.
// Completed is the only field that mutates after insert; tasks are toggled,
// never deleted.
type RegistrationTask struct {
	ID            string   `json:"id"`
	OwnerID       string   `json:"owner_id"`
	IdeaID        string   `json:"idea_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category" enum:"legal,business,technical,marketing,financial"`
	Priority      string   `json:"priority" enum:"high,medium,low"`
	EstimatedTime string   `json:"estimated_time,omitempty"`
	Completed     bool     `json:"completed"`
	DueDate       *string  `json:"due_date,omitempty" format:"date-time"`
	Resources     []string `json:"resources,omitempty"`
	Position      int      `json:"position"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
}

// OnboardingRecord is the inbound trigger written by the onboarding UI.
// Only Path=="idea" with both strings present starts the pipeline.
type OnboardingRecord struct {
	OwnerID         string `json:"owner_id"`
	Path            string `json:"path"`
	IdeaTitle       string `json:"idea_title,omitempty"`
	IdeaDescription string `json:"idea_description,omitempty"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// Idea statuses.
const (
	IdeaStatusDraft      = "draft"
	IdeaStatusValidating = "validating"
	IdeaStatusValidated  = "validated"
	IdeaStatusRegistered = "registered"
)

// Task categories.
const (
	CategoryLegal     = "legal"
	CategoryBusiness  = "business"
	CategoryTechnical = "technical"
	CategoryMarketing = "marketing"
	CategoryFinancial = "financial"
)

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)
