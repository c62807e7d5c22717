package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type insightRow struct {
	ID               string          `db:"id"`
	AnalysisID       string          `db:"analysis_id"`
	Sector           string          `db:"sector"`
	SubSector        string          `db:"sub_sector"`
	Stage            string          `db:"stage"`
	FundingTargetUSD sql.NullFloat64 `db:"funding_target_usd"`
	NarrativeTags    string          `db:"narrative_tags"`
	PrimaryClaim     string          `db:"primary_claim"`
	FundabilityScore int             `db:"fundability_score"`
	RedFlagSeverity  string          `db:"red_flag_severity"`
	CreatedAt        string          `db:"created_at"`
}

func (s *Store) InsertMarketInsight(ctx context.Context, m MarketInsight) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	tags := m.NarrativeTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshalling narrative tags: %w", err)
	}
	var target sql.NullFloat64
	if m.FundingTargetUSD != nil {
		target = sql.NullFloat64{Float64: *m.FundingTargetUSD, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO market_insights (id, analysis_id, sector, sub_sector, stage, funding_target_usd, narrative_tags, primary_claim, fundability_score, red_flag_severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.AnalysisID, m.Sector, m.SubSector, m.Stage, target, string(tagsJSON),
		m.PrimaryClaim, m.FundabilityScore, m.RedFlagSeverity, formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting market insight: %w", err)
	}
	return nil
}

// GetMarketInsightByAnalysis returns the insight linked to analysisID.
func (s *Store) GetMarketInsightByAnalysis(ctx context.Context, analysisID string) (MarketInsight, error) {
	var r insightRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`
		SELECT id, analysis_id, sector, sub_sector, stage, funding_target_usd, narrative_tags, primary_claim, fundability_score, red_flag_severity, created_at
		FROM market_insights WHERE analysis_id = ?`), analysisID)
	if isNoRows(err) {
		return MarketInsight{}, ErrNotFound
	}
	if err != nil {
		return MarketInsight{}, err
	}

	m := MarketInsight{
		ID:               r.ID,
		AnalysisID:       r.AnalysisID,
		Sector:           r.Sector,
		SubSector:        r.SubSector,
		Stage:            r.Stage,
		PrimaryClaim:     r.PrimaryClaim,
		FundabilityScore: r.FundabilityScore,
		RedFlagSeverity:  r.RedFlagSeverity,
	}
	if r.FundingTargetUSD.Valid {
		v := r.FundingTargetUSD.Float64
		m.FundingTargetUSD = &v
	}
	if err := json.Unmarshal([]byte(r.NarrativeTags), &m.NarrativeTags); err != nil {
		return MarketInsight{}, fmt.Errorf("parsing narrative tags for insight %s: %w", r.ID, err)
	}
	if m.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return MarketInsight{}, fmt.Errorf("parsing created_at for insight %s: %w", r.ID, err)
	}
	return m, nil
}

// CountMarketInsights returns the total number of stored insights.
func (s *Store) CountMarketInsights(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM market_insights`); err != nil {
		return 0, fmt.Errorf("counting market insights: %w", err)
	}
	return n, nil
}

// SectorStats groups insights by sector, most frequent first.
func (s *Store) SectorStats(ctx context.Context) ([]SectorStat, error) {
	var stats []SectorStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT sector, COUNT(*) AS count, AVG(fundability_score) AS avg_fundability
		FROM market_insights
		GROUP BY sector
		ORDER BY count DESC, sector ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying sector stats: %w", err)
	}
	return stats, nil
}

// NarrativeTagCounts tallies narrative tags across all insights, most
// frequent first. A limit <= 0 returns every tag.
func (s *Store) NarrativeTagCounts(ctx context.Context, limit int) ([]TagCount, error) {
	var raw []string
	if err := s.db.SelectContext(ctx, &raw, `SELECT narrative_tags FROM market_insights`); err != nil {
		return nil, fmt.Errorf("querying narrative tags: %w", err)
	}

	counts := make(map[string]int)
	for _, r := range raw {
		var tags []string
		if err := json.Unmarshal([]byte(r), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			counts[t]++
		}
	}

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
