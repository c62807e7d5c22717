package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Bharath-code/deckslayer/internal/auth"
	"github.com/Bharath-code/deckslayer/internal/storage"
)

type analysisSummary struct {
	ID               string    `json:"id"`
	DeckName         string    `json:"deck_name"`
	FundabilityScore int       `json:"fundability_score"`
	ExportUnlocked   bool      `json:"export_unlocked"`
	CreatedAt        time.Time `json:"created_at"`
}

type comparisonSummary struct {
	ID        string    `json:"id"`
	DeckAName string    `json:"deck_a_name"`
	DeckBName string    `json:"deck_b_name"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	Balance     int                 `json:"balance"`
	Analyses    []analysisSummary   `json:"analyses"`
	Comparisons []comparisonSummary `json:"comparisons"`
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		limit := parseIntParam(r, "limit", 20, 100)

		bal, err := deps.Ledger.GetBalance(ctx, u.ID)
		if err != nil {
			slog.Error("reading balance", "user_id", u.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history")
			return
		}
		analyses, err := deps.Records.ListAnalyses(ctx, u.ID, limit)
		if err != nil {
			slog.Error("listing analyses", "user_id", u.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history")
			return
		}
		comparisons, err := deps.Records.ListComparisons(ctx, u.ID, limit)
		if err != nil {
			slog.Error("listing comparisons", "user_id", u.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history")
			return
		}

		resp := historyResponse{
			Balance:     bal,
			Analyses:    make([]analysisSummary, len(analyses)),
			Comparisons: make([]comparisonSummary, len(comparisons)),
		}
		for i, a := range analyses {
			resp.Analyses[i] = analysisSummary{
				ID:               a.ID,
				DeckName:         a.DeckName,
				FundabilityScore: a.FundabilityScore,
				ExportUnlocked:   a.ExportUnlocked,
				CreatedAt:        a.CreatedAt,
			}
		}
		for i, c := range comparisons {
			resp.Comparisons[i] = comparisonSummary{
				ID:        c.ID,
				DeckAName: c.DeckAName,
				DeckBName: c.DeckBName,
				CreatedAt: c.CreatedAt,
			}
		}
		writeJSON(w, resp)
	}
}

func handleGetAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		a, err := deps.Records.GetAnalysis(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && a.UserID != u.ID) {
			httpError(w, http.StatusNotFound, "not_found_error", "analysis not found")
			return
		}
		if err != nil {
			slog.Error("loading analysis", "id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load analysis")
			return
		}

		writeJSON(w, map[string]any{
			"id":                a.ID,
			"deck_name":         a.DeckName,
			"report":            json.RawMessage(a.ReportJSON),
			"fundability_score": a.FundabilityScore,
			"export_unlocked":   a.ExportUnlocked,
			"created_at":        a.CreatedAt,
		})
	}
}

type trendsResponse struct {
	TotalInsights int                  `json:"total_insights"`
	Sectors       []storage.SectorStat `json:"sectors"`
	NarrativeTags []storage.TagCount   `json:"narrative_tags"`
}

func handleTrends(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := deps.Admins.Check(u); errors.Is(err, auth.ErrForbidden) {
			httpError(w, http.StatusForbidden, "permission_error", "Admin access required")
			return
		}

		resp, err := loadTrends(r.Context(), deps.Records, parseIntParam(r, "tags", 20, 200))
		if err != nil {
			slog.Error("loading trends", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load trends")
			return
		}
		writeJSON(w, resp)
	}
}

func loadTrends(ctx context.Context, records Records, tagLimit int) (trendsResponse, error) {
	total, err := records.CountMarketInsights(ctx)
	if err != nil {
		return trendsResponse{}, err
	}
	sectors, err := records.SectorStats(ctx)
	if err != nil {
		return trendsResponse{}, err
	}
	tags, err := records.NarrativeTagCounts(ctx, tagLimit)
	if err != nil {
		return trendsResponse{}, err
	}
	if sectors == nil {
		sectors = []storage.SectorStat{}
	}
	if tags == nil {
		tags = []storage.TagCount{}
	}
	return trendsResponse{TotalInsights: total, Sectors: sectors, NarrativeTags: tags}, nil
}
