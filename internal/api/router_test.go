package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/leadsync"
	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/store"
	"github.com/sells-group/leadsync/internal/welcome"
)

type fakeSyncer struct {
	syncFn func(ctx context.Context, sub model.Submission) (*model.SyncResult, error)
	got    []model.Submission
}

func (f *fakeSyncer) Sync(ctx context.Context, sub model.Submission) (*model.SyncResult, error) {
	f.got = append(f.got, sub)
	return f.syncFn(ctx, sub)
}

type fakeSchema struct {
	schema *model.FieldSchema
	err    error
	resets int
}

func (f *fakeSchema) Resolve(context.Context) (*model.FieldSchema, error) {
	return f.schema, f.err
}

func (f *fakeSchema) Reset() { f.resets++ }

type fakeWelcomer struct {
	sendFn func(ctx context.Context, req welcome.Request) (*welcome.Result, error)
}

func (f *fakeWelcomer) Send(ctx context.Context, req welcome.Request) (*welcome.Result, error) {
	return f.sendFn(ctx, req)
}

type fakeJournal struct {
	filter store.SyncFilter
	recs   []model.SyncRecord
	err    error
}

func (f *fakeJournal) ListSyncs(_ context.Context, filter store.SyncFilter) ([]model.SyncRecord, error) {
	f.filter = filter
	return f.recs, f.err
}

func serve(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func okSyncer() *fakeSyncer {
	cid := "17"
	return &fakeSyncer{syncFn: func(context.Context, model.Submission) (*model.SyncResult, error) {
		return &model.SyncResult{
			DealID:       "501",
			ContactID:    &cid,
			MappedFields: map[string]string{"UF_CRM_STYLE": "44"},
			DroppedKeys:  []string{"gift"},
		}, nil
	}}
}

func TestHealth(t *testing.T) {
	h := NewRouter(Deps{})
	rr, body := serve(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ok"])
}

func TestBitrixLead_Success(t *testing.T) {
	syncer := okSyncer()
	h := NewRouter(Deps{Syncer: syncer})

	rr, body := serve(t, h, http.MethodPost, "/api/bitrix-lead",
		`{"name":"Anna","phone":"8 (999) 123-45-67","answers":{"style":"Loft","area":42}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "501", body["dealId"])
	assert.Equal(t, "17", body["contactId"])
	assert.Equal(t, map[string]any{"UF_CRM_STYLE": "44"}, body["mappedFields"])
	assert.Equal(t, []any{"gift"}, body["droppedKeys"])

	require.Len(t, syncer.got, 1)
	assert.Equal(t, "Anna", syncer.got[0].Name)
	assert.Equal(t, "42", syncer.got[0].Answers["area"])
}

func TestBitrixLead_NullContact(t *testing.T) {
	syncer := &fakeSyncer{syncFn: func(context.Context, model.Submission) (*model.SyncResult, error) {
		return &model.SyncResult{DealID: "9", MappedFields: map[string]string{}}, nil
	}}
	h := NewRouter(Deps{Syncer: syncer})

	rr, body := serve(t, h, http.MethodPost, "/api/bitrix-lead", `{"name":"A","phone":"+79991234567"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	v, present := body["contactId"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestBitrixLead_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{
			name:   "validation",
			err:    &leadsync.Error{Kind: leadsync.KindValidation, Op: "normalize phone", Err: leadsync.ErrPhoneRequired},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "schema",
			err:    &leadsync.Error{Kind: leadsync.KindSchemaFetch, Op: "resolve schema", Err: errors.New("boom")},
			status: http.StatusBadGateway,
			kind:   "schema_fetch",
		},
		{
			name:   "crm",
			err:    eris.Wrap(&leadsync.Error{Kind: leadsync.KindCRMCall, Op: "add deal", Err: errors.New("denied")}, "sync"),
			status: http.StatusBadGateway,
			kind:   "crm_call",
		},
		{
			name:   "other",
			err:    errors.New("unexpected"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{syncFn: func(context.Context, model.Submission) (*model.SyncResult, error) {
				return nil, tt.err
			}}
			h := NewRouter(Deps{Syncer: syncer})

			rr, body := serve(t, h, http.MethodPost, "/api/bitrix-lead", `{"name":"A"}`)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, false, body["ok"])
			assert.NotEmpty(t, body["error"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			}
		})
	}
}

func TestBitrixLead_InvalidJSON(t *testing.T) {
	syncer := okSyncer()
	h := NewRouter(Deps{Syncer: syncer})

	rr, body := serve(t, h, http.MethodPost, "/api/bitrix-lead", `{"name":`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation", body["kind"])
	assert.Empty(t, syncer.got)
}

func TestBitrixLead_BodyTooLarge(t *testing.T) {
	syncer := okSyncer()
	h := NewRouter(Deps{Syncer: syncer})

	big := `{"name":"` + strings.Repeat("x", maxBodyBytes+10) + `"}`
	rr, body := serve(t, h, http.MethodPost, "/api/bitrix-lead", big)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "request body too large", body["error"])
	assert.Empty(t, syncer.got)
}

func TestBitrixLead_MethodNotAllowed(t *testing.T) {
	h := NewRouter(Deps{Syncer: okSyncer()})

	rr, body := serve(t, h, http.MethodGet, "/api/bitrix-lead", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "method_not_allowed", body["kind"])
}

func TestNotFound(t *testing.T) {
	h := NewRouter(Deps{})
	rr, body := serve(t, h, http.MethodGet, "/api/nope", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", body["kind"])
}

func TestCORSPreflight(t *testing.T) {
	h := NewRouter(Deps{Syncer: okSyncer(), AllowedOrigins: []string{"https://quiz.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/bitrix-lead", nil)
	req.Header.Set("Origin", "https://quiz.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://quiz.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSendWelcome(t *testing.T) {
	tests := []struct {
		name   string
		sendFn func(context.Context, welcome.Request) (*welcome.Result, error)
		status int
		kind   string
	}{
		{
			name: "sent",
			sendFn: func(_ context.Context, req welcome.Request) (*welcome.Result, error) {
				return &welcome.Result{MessageID: 77, Text: "hi " + req.UserID.String()}, nil
			},
			status: http.StatusOK,
		},
		{
			name: "invalid",
			sendFn: func(context.Context, welcome.Request) (*welcome.Result, error) {
				return nil, eris.Wrap(welcome.ErrInvalidRequest, "welcome: bad id")
			},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name: "not allowed",
			sendFn: func(context.Context, welcome.Request) (*welcome.Result, error) {
				return nil, welcome.ErrNotAllowed
			},
			status: http.StatusForbidden,
			kind:   "not_allowed",
		},
		{
			name: "upstream failure",
			sendFn: func(context.Context, welcome.Request) (*welcome.Result, error) {
				return nil, errors.New("vk: flood control")
			},
			status: http.StatusBadGateway,
			kind:   "vk_call",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(Deps{Welcome: &fakeWelcomer{sendFn: tt.sendFn}})

			rr, body := serve(t, h, http.MethodPost, "/api/send-welcome", `{"user_id":10,"group_id":"20"}`)

			assert.Equal(t, tt.status, rr.Code)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
				return
			}
			assert.Equal(t, true, body["ok"])
			assert.InDelta(t, 77, body["messageId"], 0)
			assert.Equal(t, "hi 10", body["text"])
		})
	}
}

func TestSendWelcome_NotConfigured(t *testing.T) {
	h := NewRouter(Deps{})
	rr, body := serve(t, h, http.MethodPost, "/api/send-welcome", `{"user_id":1,"group_id":2}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "unavailable", body["kind"])
}

func TestSchema(t *testing.T) {
	fs := &fakeSchema{schema: model.NewFieldSchema([]model.FieldSchemaEntry{
		{ExternalID: "style", FieldKey: "UF_CRM_STYLE", Enum: model.EnumDictionary{"Loft": "44"}},
	})}
	h := NewRouter(Deps{Schema: fs})

	rr, body := serve(t, h, http.MethodGet, "/api/schema", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 1, body["fields"], 0)
	assert.Equal(t, 0, fs.resets)

	rr, _ = serve(t, h, http.MethodGet, "/api/schema?refresh=1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, fs.resets)
}

func TestSchema_Error(t *testing.T) {
	h := NewRouter(Deps{Schema: &fakeSchema{err: errors.New("schema: list fields")}})

	rr, body := serve(t, h, http.MethodGet, "/api/schema", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "schema_fetch", body["kind"])
}

func TestSyncs(t *testing.T) {
	j := &fakeJournal{recs: []model.SyncRecord{{ID: "a", Status: model.SyncStatusFailed, ErrorKind: "crm_call"}}}
	h := NewRouter(Deps{Journal: j})

	rr, body := serve(t, h, http.MethodGet, "/api/syncs?limit=5&offset=2&status=failed", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, store.SyncFilter{Status: model.SyncStatusFailed, Limit: 5, Offset: 2}, j.filter)
	syncs, ok := body["syncs"].([]any)
	require.True(t, ok)
	require.Len(t, syncs, 1)
	assert.Equal(t, "a", syncs[0].(map[string]any)["id"])
}

func TestSyncs_EmptyList(t *testing.T) {
	h := NewRouter(Deps{Journal: &fakeJournal{}})

	rr, body := serve(t, h, http.MethodGet, "/api/syncs", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, body["syncs"])
}

func TestSyncs_BadParams(t *testing.T) {
	h := NewRouter(Deps{Journal: &fakeJournal{}})

	for _, path := range []string{"/api/syncs?limit=abc", "/api/syncs?offset=-1", "/api/syncs?status=pending"} {
		rr, body := serve(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Equal(t, "validation", body["kind"], path)
	}
}

func TestSyncs_Disabled(t *testing.T) {
	h := NewRouter(Deps{})

	rr, body := serve(t, h, http.MethodGet, "/api/syncs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unavailable", body["kind"])
}

func TestSyncs_StoreError(t *testing.T) {
	h := NewRouter(Deps{Journal: &fakeJournal{err: errors.New("sqlite: locked")}})

	rr, body := serve(t, h, http.MethodGet, "/api/syncs", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, false, body["ok"])
}
