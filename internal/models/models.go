package models

import "time"

type PlanTier string

const (
	PlanFree    PlanTier = "FREE"
	PlanCreator PlanTier = "CREATOR"
	PlanPro     PlanTier = "PRO"
)

type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "PENDING"
	GenerationProcessing GenerationStatus = "PROCESSING"
	GenerationCompleted  GenerationStatus = "COMPLETED"
	GenerationFailed     GenerationStatus = "FAILED"
)

// Terminal reports whether the status is final. A terminal record is never
// updated again.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

type TransactionType string

const (
	TransactionPurchase TransactionType = "PURCHASE"
	TransactionUsage    TransactionType = "USAGE"
	TransactionRefund   TransactionType = "REFUND"
	TransactionBonus    TransactionType = "BONUS"
)

// Account is a billable identity. The credit balance is mutated only through
// the ledger store; everything else treats it as read-only.
type Account struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Plan       PlanTier  `json:"plan"`
	Credits    int       `json:"credits"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CreditTransaction is an immutable audit record. Amount is positive for
// credits and negative for debits; the per-account sum reconciles with the
// account balance.
type CreditTransaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Amount       int             `json:"amount"`
	Type         TransactionType `json:"type"`
	Description  string          `json:"description,omitempty"`
	GenerationID string          `json:"generationId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type Generation struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"accountId"`
	Prompt         string           `json:"prompt"`
	EnhancedPrompt string           `json:"enhancedPrompt,omitempty"`
	ImageURL       string           `json:"imageUrl,omitempty"`
	Status         GenerationStatus `json:"status"`
	CreditsUsed    int              `json:"creditsUsed"`
	Width          int              `json:"width"`
	Height         int              `json:"height"`
	PersonaID      string           `json:"personaId,omitempty"`
	StyleID        string           `json:"styleId,omitempty"`
	ParentID       string           `json:"parentId,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type Persona struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"imageUrl"`
	UsageCount  int       `json:"usageCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Style struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Palette     string    `json:"palette,omitempty"`
	Mood        string    `json:"mood,omitempty"`
	VisualStyle string    `json:"visualStyle,omitempty"`
	ImageURLs   []string  `json:"imageUrls"`
	UsageCount  int       `json:"usageCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
