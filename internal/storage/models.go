package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Ledger entry types.
const (
	LedgerPurchase    = "purchase"
	LedgerConsumption = "consumption"
	LedgerGrant       = "grant"
)

// LedgerEntry is one append-only credit transaction.
type LedgerEntry struct {
	ID        string
	UserID    string
	Amount    int
	Type      string
	Reason    string
	CreatedAt time.Time
}

type Analysis struct {
	ID               string
	UserID           string
	DeckName         string
	ReportJSON       string
	FundabilityScore int
	ExportUnlocked   bool
	CreatedAt        time.Time
}

type Comparison struct {
	ID             string
	UserID         string
	DeckAName      string
	DeckBName      string
	ComparisonJSON string
	CreatedAt      time.Time
}

// MarketInsight is internal trend metadata derived from an analysed deck.
// It is never returned to the user who uploaded the deck.
type MarketInsight struct {
	ID               string
	AnalysisID       string
	Sector           string
	SubSector        string
	Stage            string
	FundingTargetUSD *float64
	NarrativeTags    []string
	PrimaryClaim     string
	FundabilityScore int
	RedFlagSeverity  string
	CreatedAt        time.Time
}

type SectorStat struct {
	Sector         string  `db:"sector" json:"sector"`
	Count          int     `db:"count" json:"count"`
	AvgFundability float64 `db:"avg_fundability" json:"avg_fundability"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
