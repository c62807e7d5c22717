package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Bharath-code/deckslayer/internal/committee"
)

const maxRequestBodySize = 1 << 20 // 1MB

// rebutRequest accepts both the front-end's field names and the short ones.
type rebutRequest struct {
	KillerQuestion string          `json:"killerQuestion"`
	UserAnswer     string          `json:"userAnswer"`
	Question       string          `json:"question"`
	Answer         string          `json:"answer"`
	Context        json.RawMessage `json:"context"`
}

func (q rebutRequest) toRequest() committee.RebuttalRequest {
	req := committee.RebuttalRequest{
		Question: firstNonEmpty(q.KillerQuestion, q.Question),
		Answer:   firstNonEmpty(q.UserAnswer, q.Answer),
	}
	if len(q.Context) > 0 && string(q.Context) != "null" {
		var s string
		if err := json.Unmarshal(q.Context, &s); err == nil {
			req.Context = s
		} else {
			req.Context = string(q.Context)
		}
	}
	return req
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func handleRebut(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var body rebutRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Missing data")
			return
		}
		req := body.toRequest()
		if req.Question == "" || req.Answer == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "Missing data")
			return
		}

		text, err := deps.Committee.Rebut(r.Context(), req)
		if err != nil {
			slog.Error("rebuttal failed", "kind", "upstream", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "Interrogation failed")
			return
		}
		writeJSON(w, map[string]string{"judgement": text})
	}
}
