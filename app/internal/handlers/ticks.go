package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"uptime/app/internal/auth"
	"uptime/app/internal/models"
)

// tickRequest is a tick on the wire with an optional detached signature
type tickRequest struct {
	models.Tick
	Signature string `json:"signature,omitempty"`
}

type batchResult struct {
	Index int    `json:"index"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code"`
}

// verify checks the tick signature against the validator's registered key.
// A signed tick must carry its own id, so a replayed body hits the
// duplicate check instead of being stored again under a fresh id.
func (a *API) verify(ctx context.Context, t models.Tick, sig string) error {
	if !a.RequireSignatures {
		return nil
	}
	if strings.TrimSpace(t.ID) == "" {
		return models.Invalid("id", "required when ticks are signed")
	}
	if sig == "" {
		return auth.ErrBadSignature
	}
	v, err := a.Engine.Store().GetValidator(ctx, t.ValidatorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Invalid("validator_id", "unknown validator "+t.ValidatorID)
		}
		return err
	}
	if err := auth.VerifyTick(v.PublicKey, t, sig); err != nil {
		log.Warn().Str("monitor_id", t.MonitorID).Str("validator_id", t.ValidatorID).Msg("[API] Tick signature rejected")
		return err
	}
	return nil
}

// HandleIngestTick accepts one tick
func (a *API) HandleIngestTick() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tickRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		sig := req.Signature
		if h := r.Header.Get(SignatureHeader); h != "" {
			sig = h
		}
		if err := a.verify(r.Context(), req.Tick, sig); err != nil {
			writeError(w, r, err)
			return
		}

		res, err := a.Engine.Ingest(r.Context(), req.Tick)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, res)
	}
}

// HandleIngestBatch accepts a list of ticks and reports one result per tick
func (a *API) HandleIngestBatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []tickRequest
		if err := decodeJSON(r, &reqs); err != nil {
			writeError(w, r, err)
			return
		}

		results := make([]batchResult, len(reqs))
		ticks := make([]models.Tick, 0, len(reqs))
		index := make([]int, 0, len(reqs))
		for i, req := range reqs {
			results[i] = batchResult{Index: i, Code: http.StatusAccepted}
			if err := a.verify(r.Context(), req.Tick, req.Signature); err != nil {
				results[i].Code = statusFor(err)
				results[i].Error = err.Error()
				continue
			}
			ticks = append(ticks, req.Tick)
			index = append(index, i)
		}

		accepted := 0
		for j, err := range a.Engine.IngestBatch(r.Context(), ticks) {
			i := index[j]
			if err != nil {
				results[i].Code = statusFor(err)
				results[i].Error = err.Error()
				continue
			}
			accepted++
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"accepted": accepted,
			"rejected": len(reqs) - accepted,
			"results":  results,
		})
	}
}
