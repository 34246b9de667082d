package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/leadsync"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/store"
	"github.com/sells-group/leadsync/internal/welcome"
)

type handlers struct {
	deps Deps
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type leadBody struct {
	OK bool `json:"ok"`
	*model.SyncResult
}

type welcomeBody struct {
	OK bool `json:"ok"`
	*welcome.Result
}

type schemaBody struct {
	OK     bool               `json:"ok"`
	Fields int                `json:"fields"`
	Schema *model.FieldSchema `json:"schema"`
}

type syncsBody struct {
	OK    bool               `json:"ok"`
	Syncs []model.SyncRecord `json:"syncs"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ok"})
}

func (h *handlers) bitrixLead(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if !decodeBody(w, r, &sub) {
		return
	}

	res, err := h.deps.Syncer.Sync(r.Context(), sub)
	if err != nil {
		kind := leadsync.KindOf(err)
		writeJSON(w, syncStatus(kind), errorBody{Error: err.Error(), Kind: string(kind)})
		return
	}
	writeJSON(w, http.StatusOK, leadBody{OK: true, SyncResult: res})
}

// syncStatus maps a sync failure kind to an HTTP status.
func syncStatus(k leadsync.Kind) int {
	switch k {
	case leadsync.KindValidation:
		return http.StatusBadRequest
	case leadsync.KindSchemaFetch, leadsync.KindCRMCall:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) sendWelcome(w http.ResponseWriter, r *http.Request) {
	if h.deps.Welcome == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "messaging token is not configured", Kind: "unavailable"})
		return
	}

	var req welcome.Request
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.deps.Welcome.Send(r.Context(), req)
	switch {
	case errors.Is(err, welcome.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: string(leadsync.KindValidation)})
	case errors.Is(err, welcome.ErrNotAllowed):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Kind: "not_allowed"})
	case err != nil:
		zap.L().Error("api: welcome failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Kind: "vk_call"})
	default:
		writeJSON(w, http.StatusOK, welcomeBody{OK: true, Result: res})
	}
}

func (h *handlers) schema(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "1" {
		h.deps.Schema.Reset()
	}
	s, err := h.deps.Schema.Resolve(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Kind: string(leadsync.KindSchemaFetch)})
		return
	}
	writeJSON(w, http.StatusOK, schemaBody{OK: true, Fields: s.Len(), Schema: s})
}

func (h *handlers) syncs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "sync journal is disabled", Kind: "unavailable"})
		return
	}

	q := r.URL.Query()
	filter := store.SyncFilter{
		Status: model.SyncStatus(q.Get("status")),
		Phone:  q.Get("phone"),
	}
	switch filter.Status {
	case "", model.SyncStatusSucceeded, model.SyncStatusFailed:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "status must be succeeded or failed", Kind: string(leadsync.KindValidation)})
		return
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: name + " must be a non-negative integer", Kind: string(leadsync.KindValidation)})
			return
		}
		*dst = n
	}

	recs, err := h.deps.Journal.ListSyncs(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list syncs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if recs == nil {
		recs = []model.SyncRecord{}
	}
	writeJSON(w, http.StatusOK, syncsBody{OK: true, Syncs: recs})
}

// decodeBody reads a size-limited JSON body into v. On failure it writes a
// 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		msg := "invalid request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: string(leadsync.KindValidation)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
