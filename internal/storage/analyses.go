package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type analysisRow struct {
	ID               string `db:"id"`
	UserID           string `db:"user_id"`
	DeckName         string `db:"deck_name"`
	ReportJSON       string `db:"report_json"`
	FundabilityScore int    `db:"fundability_score"`
	ExportUnlocked   int    `db:"export_unlocked"`
	CreatedAt        string `db:"created_at"`
}

func (r analysisRow) toAnalysis() (Analysis, error) {
	t, err := parseTime(r.CreatedAt)
	if err != nil {
		return Analysis{}, fmt.Errorf("parsing created_at for analysis %s: %w", r.ID, err)
	}
	return Analysis{
		ID:               r.ID,
		UserID:           r.UserID,
		DeckName:         r.DeckName,
		ReportJSON:       r.ReportJSON,
		FundabilityScore: r.FundabilityScore,
		ExportUnlocked:   r.ExportUnlocked != 0,
		CreatedAt:        t,
	}, nil
}

// InsertAnalysis stores a completed analysis and returns its identifier.
func (s *Store) InsertAnalysis(ctx context.Context, a Analysis) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO analyses (id, user_id, deck_name, report_json, fundability_score, export_unlocked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.DeckName, a.ReportJSON, a.FundabilityScore, boolToInt(a.ExportUnlocked), formatTime(a.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("inserting analysis: %w", err)
	}
	return a.ID, nil
}

func (s *Store) GetAnalysis(ctx context.Context, id string) (Analysis, error) {
	var r analysisRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`
		SELECT id, user_id, deck_name, report_json, fundability_score, export_unlocked, created_at
		FROM analyses WHERE id = ?`), id)
	if isNoRows(err) {
		return Analysis{}, ErrNotFound
	}
	if err != nil {
		return Analysis{}, err
	}
	return r.toAnalysis()
}

// ListAnalyses returns the user's analyses, newest first.
func (s *Store) ListAnalyses(ctx context.Context, userID string, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []analysisRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, user_id, deck_name, report_json, fundability_score, export_unlocked, created_at
		FROM analyses WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	out := make([]Analysis, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAnalysis()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SetExportUnlocked flips the export flag on one analysis owned by userID.
// Returns ErrNotFound if no such analysis belongs to the user.
func (s *Store) SetExportUnlocked(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE analyses SET export_unlocked = 1 WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("unlocking export: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Comparisons ---

type comparisonRow struct {
	ID             string `db:"id"`
	UserID         string `db:"user_id"`
	DeckAName      string `db:"deck_a_name"`
	DeckBName      string `db:"deck_b_name"`
	ComparisonJSON string `db:"comparison_json"`
	CreatedAt      string `db:"created_at"`
}

func (s *Store) InsertComparison(ctx context.Context, c Comparison) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO comparisons (id, user_id, deck_a_name, deck_b_name, comparison_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID, c.UserID, c.DeckAName, c.DeckBName, c.ComparisonJSON, formatTime(c.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("inserting comparison: %w", err)
	}
	return c.ID, nil
}

func (s *Store) ListComparisons(ctx context.Context, userID string, limit int) ([]Comparison, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []comparisonRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, user_id, deck_a_name, deck_b_name, comparison_json, created_at
		FROM comparisons WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing comparisons: %w", err)
	}
	out := make([]Comparison, 0, len(rows))
	for _, r := range rows {
		t, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for comparison %s: %w", r.ID, err)
		}
		out = append(out, Comparison{
			ID:             r.ID,
			UserID:         r.UserID,
			DeckAName:      r.DeckAName,
			DeckBName:      r.DeckBName,
			ComparisonJSON: r.ComparisonJSON,
			CreatedAt:      t,
		})
	}
	return out, nil
}
