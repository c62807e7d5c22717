package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/Bharath-code/deckslayer/internal/auth"
	"github.com/Bharath-code/deckslayer/internal/committee"
	"github.com/Bharath-code/deckslayer/internal/extract"
	"github.com/Bharath-code/deckslayer/internal/ledger"
	"github.com/Bharath-code/deckslayer/internal/report"
)

const maxUploadSize = 20 << 20 // 20MB per request

// frame is one line of the progressive NDJSON stream.
type frame struct {
	Type       string          `json:"type"`
	Report     json.RawMessage `json:"report,omitempty"`
	AnalysisID string          `json:"analysis_id,omitempty"`
	Error      *frameError     `json:"error,omitempty"`
}

type frameError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// checkBalance answers 402 unless userID holds at least need credits. It runs
// before the upload is read.
func checkBalance(w http.ResponseWriter, r *http.Request, deps Deps, userID string, need int, msg string) bool {
	err := deps.Ledger.Require(r.Context(), userID, need)
	if errors.Is(err, ledger.ErrInsufficientCredit) {
		httpError(w, http.StatusPaymentRequired, "insufficient_credits", "%s", msg)
		return false
	}
	if err != nil {
		slog.Error("reading balance", "user_id", userID, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "Roast failed")
		return false
	}
	return true
}

// readDeck loads one uploaded PDF and extracts its text.
func readDeck(r *http.Request, deps Deps, u auth.User, field string) (name, text string, err error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", err
	}
	archiveDeck(r, deps, u, hdr, data)

	text, err = deps.Extract(data)
	if err != nil {
		return hdr.Filename, "", err
	}
	return hdr.Filename, text, nil
}

func archiveDeck(r *http.Request, deps Deps, u auth.User, hdr *multipart.FileHeader, data []byte) {
	if deps.Archive == nil {
		return
	}
	key, err := deps.Archive.Archive(r.Context(), u.ID, hdr.Filename, data)
	if err != nil {
		slog.Warn("archiving deck", "user_id", u.ID, "deck", hdr.Filename, "error", err)
		return
	}
	slog.Debug("deck archived", "user_id", u.ID, "key", key)
}

// logFailure records a committee failure with its kind so schema violations
// can be told apart from provider errors.
func logFailure(msg string, err error, args ...any) {
	kind := "upstream"
	var se *report.SchemaError
	if errors.As(err, &se) {
		kind = "schema_validation"
	}
	slog.Error(msg, append(args, "kind", kind, "error", err)...)
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		if !checkBalance(w, r, deps, u.ID, committee.AnalysisCost, "Insufficient credits. Audit Protocol required.") {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		name, text, err := readDeck(r, deps, u, "file")
		if err != nil {
			if errors.Is(err, extract.ErrNoText) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "No readable text in uploaded file")
				return
			}
			if name != "" {
				slog.Warn("parsing deck", "user_id", u.ID, "deck", name, "error", err)
				httpError(w, http.StatusBadRequest, "invalid_request_error", "Could not read PDF")
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "No file uploaded")
			return
		}

		req := committee.AnalysisRequest{UserID: u.ID, DeckName: name, Text: text}
		if r.URL.Query().Get("mode") == "atomic" {
			analyzeAtomic(w, r, deps, req)
			return
		}
		analyzeProgressive(w, r, deps, req)
	}
}

func analyzeAtomic(w http.ResponseWriter, r *http.Request, deps Deps, req committee.AnalysisRequest) {
	res, err := deps.Committee.Analyze(r.Context(), req, nil)
	if err != nil {
		logFailure("analysis failed", err, "user_id", req.UserID, "deck", req.DeckName)
		httpError(w, http.StatusInternalServerError, "api_error", "Roast failed")
		return
	}
	countDebit(deps, "analyze")
	writeJSON(w, map[string]any{
		"report":      res.Report,
		"analysis_id": res.AnalysisID,
	})
}

// analyzeProgressive streams NDJSON frames. The response is committed on the
// first partial; a failure before that is a plain 500.
func analyzeProgressive(w http.ResponseWriter, r *http.Request, deps Deps, req committee.AnalysisRequest) {
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false

	send := func(f frame) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(f); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	res, err := deps.Committee.Analyze(r.Context(), req, func(partial json.RawMessage) error {
		return send(frame{Type: "partial", Report: partial})
	})
	if err != nil {
		logFailure("analysis failed", err, "user_id", req.UserID, "deck", req.DeckName)
		if !started {
			httpError(w, http.StatusInternalServerError, "api_error", "Roast failed")
			return
		}
		send(frame{Type: "error", Error: &frameError{Message: "Roast failed", Type: "api_error"}})
		return
	}
	countDebit(deps, "analyze")

	body, err := res.Report.JSON()
	if err != nil {
		slog.Error("encoding final report", "error", err)
		return
	}
	send(frame{Type: "final", Report: body, AnalysisID: res.AnalysisID})
}

func handleCompare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		if !checkBalance(w, r, deps, u.ID, committee.ComparisonCost, "Insufficient credits. Comparison requires 2 credits (1 per deck).") {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, 2*maxUploadSize)
		var decks [2]committee.Deck
		for i, field := range []string{"deck_a", "deck_b"} {
			name, text, err := readDeck(r, deps, u, field)
			if errors.Is(err, extract.ErrNoText) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "No readable text in %s", name)
				return
			}
			if err != nil {
				if name != "" {
					slog.Warn("parsing deck", "user_id", u.ID, "deck", name, "error", err)
				}
				httpError(w, http.StatusBadRequest, "invalid_request_error", "Two deck files are required")
				return
			}
			decks[i] = committee.Deck{Name: name, Text: text}
		}

		res, err := deps.Committee.Compare(r.Context(), committee.CompareRequest{UserID: u.ID, Decks: decks})
		if err != nil {
			logFailure("comparison failed", err, "user_id", u.ID)
			httpError(w, http.StatusInternalServerError, "api_error", "Comparison failed. Please try again.")
			return
		}
		countDebit(deps, "compare")
		writeJSON(w, res)
	}
}

func countDebit(deps Deps, op string) {
	if deps.Metrics == nil {
		return
	}
	n := committee.AnalysisCost
	if op == "compare" {
		n = committee.ComparisonCost
	}
	deps.Metrics.LedgerDebits.WithLabelValues(op).Add(float64(n))
}
