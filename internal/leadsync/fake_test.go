package leadsync

import (
	"context"
	"sync"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/pkg/bitrix"
)

type crmCall struct {
	method string
	params map[string]any
}

// fakeCRM answers CRM calls from per-method handlers and records them.
type fakeCRM struct {
	mu       sync.Mutex
	calls    []crmCall
	handlers map[string]func(params map[string]any) (*bitrix.Response, error)
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{handlers: map[string]func(map[string]any) (*bitrix.Response, error){}}
}

func (f *fakeCRM) on(method string, fn func(params map[string]any) (*bitrix.Response, error)) *fakeCRM {
	f.handlers[method] = fn
	return f
}

func (f *fakeCRM) reply(method string, v any) *fakeCRM {
	return f.on(method, func(map[string]any) (*bitrix.Response, error) {
		return bitrix.NewResponse(v), nil
	})
}

func (f *fakeCRM) fail(method string, err error) *fakeCRM {
	return f.on(method, func(map[string]any) (*bitrix.Response, error) {
		return nil, err
	})
}

func (f *fakeCRM) Call(_ context.Context, method string, params map[string]any) (*bitrix.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, crmCall{method: method, params: params})
	h, ok := f.handlers[method]
	f.mu.Unlock()
	if !ok {
		return nil, &bitrix.APIError{Method: method, Code: "ERROR_METHOD_NOT_FOUND"}
	}
	return h(params)
}

func (f *fakeCRM) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakeCRM) last(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i].params
		}
	}
	return nil
}

type fakeRecorder struct {
	records []*model.SyncRecord
	err     error
}

func (r *fakeRecorder) RecordSync(_ context.Context, rec *model.SyncRecord) error {
	r.records = append(r.records, rec)
	return r.err
}
