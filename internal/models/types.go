package models

import (
	"time"
)

// Amount is a monetary value in micropounds (1 micropound = £0.000001).
// Integer arithmetic keeps per-call AI costs exact; £0.08 = 80000.
type Amount int64

// Pounds converts an amount to GBP for display.
func (a Amount) Pounds() float64 {
	return float64(a) / 1e6
}

// AmountFromPounds converts a GBP value to micropounds.
func AmountFromPounds(gbp float64) Amount {
	return Amount(gbp*1e6 + 0.5)
}

// Service type tags used for cost attribution
const (
	ServiceGeneration = "generation"
	ServiceModeration = "moderation"
	ServiceSpeech     = "speech"
)

// Persona is the immutable definition of an AI character.
// Loaded once at startup and never mutated.
type Persona struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Tone             string   `json:"tone"`
	PromptTemplate   string   `json:"-"`
	EducationalFocus string   `json:"educationalFocus"`
	IconEmoji        string   `json:"iconEmoji"`
	SafeTopics       []string `json:"safeTopics"`
	SubjectKeywords  []string `json:"-"`
	FallbackReplies  []string `json:"-"`
}

// InteractionRequest is the input of one pipeline run.
type InteractionRequest struct {
	PersonaID   string `json:"personaId"`
	UserID      string `json:"userId"`
	InputText   string `json:"inputText"`
	GameContext string `json:"gameContext"`
}

// InteractionResult is what the caller always receives, fallback or not.
type InteractionResult struct {
	PersonaID     string    `json:"personaId"`
	Reply         string    `json:"reply"`
	IsAppropriate bool      `json:"isAppropriate"`
	UsedFallback  bool      `json:"usedFallback"`
	Timestamp     time.Time `json:"timestamp"`
}

// Fallback reason codes carried in audit events.
const (
	ReasonBudget          = "budget"
	ReasonGenerationError = "generation-error"
	ReasonModeration      = "moderation"
	ReasonInternal        = "internal-error"
)

// ModerationVerdict aggregates the three content validators.
// Approved is true only when every category flag is true and
// Confidence is at or above the configured threshold.
type ModerationVerdict struct {
	Approved       bool     `json:"approved"`
	Safe           bool     `json:"safe"`
	AgeAppropriate bool     `json:"ageAppropriate"`
	Educational    bool     `json:"educational"`
	Confidence     float64  `json:"confidence"`
	Concerns       []string `json:"concerns"`
}

// CostRecord is one append-only entry per billable call.
type CostRecord struct {
	UserID      string    `json:"userId"`
	Day         string    `json:"day"` // calendar day in the ledger time zone, YYYY-MM-DD
	ServiceType string    `json:"serviceType"`
	Cost        Amount    `json:"cost"`
	Timestamp   time.Time `json:"timestamp"`
}

// ServiceCost is a per-service slice of a day's spend.
type ServiceCost struct {
	Calls int    `json:"calls"`
	Cost  Amount `json:"cost"`
}

// DailyCostSummary aggregates a user's spend for one calendar day.
type DailyCostSummary struct {
	UserID          string                 `json:"userId"`
	Day             string                 `json:"day"`
	TotalCost       Amount                 `json:"totalCost"`
	RemainingBudget Amount                 `json:"remainingBudget"`
	Limit           Amount                 `json:"limit"`
	OverLimit       bool                   `json:"overLimit"`
	ServiceCosts    map[string]ServiceCost `json:"serviceCosts"`
}

// AlertType classifies budget alerts.
type AlertType string

const (
	AlertWarning           AlertType = "Warning"
	AlertLimitExceeded     AlertType = "LimitExceeded"
	AlertEmergencyThrottle AlertType = "EmergencyThrottle"
)

// BudgetAlert is emitted when a user's daily total crosses a threshold.
// SuppressionKey deduplicates repeats within the minimum alert interval.
type BudgetAlert struct {
	UserID         string    `json:"userId"`
	Type           AlertType `json:"type"`
	CurrentCost    Amount    `json:"currentCost"`
	Limit          Amount    `json:"limit"`
	Message        string    `json:"message"`
	SuppressionKey string    `json:"-"`
	Timestamp      time.Time `json:"timestamp"`
}

// AdmissionDecision is the budget guard's answer for one request.
// Reserved is the amount atomically pre-charged against the daily
// counter; the pipeline must later commit or release it.
type AdmissionDecision struct {
	Allowed        bool          `json:"allowed"`
	Reason         string        `json:"reason"`
	CurrentCost    Amount        `json:"currentCost"`
	Limit          Amount        `json:"limit"`
	RetryAfter     time.Duration `json:"-"`
	Reserved       Amount        `json:"-"`
	FriendlyDetail string        `json:"-"`
}

// AuditEvent is one entry in the compliance audit trail.
type AuditEvent struct {
	UserID    string    `json:"userId"`
	PersonaID string    `json:"personaId"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Concerns  []string  `json:"concerns,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
