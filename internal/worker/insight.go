package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Bharath-code/deckslayer/internal/oracle"
	"github.com/Bharath-code/deckslayer/internal/report"
	"github.com/Bharath-code/deckslayer/internal/storage"
)

// InsightExtractor classifies a deck.
type InsightExtractor interface {
	Extract(ctx context.Context, text string) (report.Insight, error)
}

// InsightStore persists extracted insights.
type InsightStore interface {
	InsertMarketInsight(ctx context.Context, m storage.MarketInsight) error
}

// MarketInsight returns the handler for oracle.JobType jobs.
func MarketInsight(ex InsightExtractor, store InsightStore) Handler {
	return func(ctx context.Context, job *storage.Job) error {
		var payload oracle.Payload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}

		in, err := ex.Extract(ctx, payload.Text)
		if err != nil {
			kind := "upstream"
			var se *report.SchemaError
			if errors.As(err, &se) {
				kind = "schema_validation"
			}
			slog.Error("market insight extraction failed", "analysis_id", payload.AnalysisID, "kind", kind, "error", err)
			return fmt.Errorf("extracting insight for %s: %w", payload.AnalysisID, err)
		}

		err = store.InsertMarketInsight(ctx, storage.MarketInsight{
			AnalysisID:       payload.AnalysisID,
			Sector:           in.Sector,
			SubSector:        in.SubSector,
			Stage:            in.Stage,
			FundingTargetUSD: in.FundingTargetUSD,
			NarrativeTags:    in.NarrativeTags,
			PrimaryClaim:     in.PrimaryClaim,
			FundabilityScore: payload.FundabilityScore,
			RedFlagSeverity:  in.RedFlagSeverity,
		})
		if err != nil {
			return fmt.Errorf("storing insight for %s: %w", payload.AnalysisID, err)
		}
		slog.Info("market insight extracted", "analysis_id", payload.AnalysisID, "sector", in.Sector)
		return nil
	}
}
