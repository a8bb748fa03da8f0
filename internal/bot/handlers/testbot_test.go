package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
)

// fakeTelegram records every Bot API call made by a handler and can make
// selected methods fail. Backed by an httptest server that the bot client is
// pointed at.
type fakeTelegram struct {
	mu          sync.Mutex
	calls       []apiCall
	failMethods map[string]string
}

type apiCall struct {
	Method string
	Params map[string]string
}

func (f *fakeTelegram) record(method string, params map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{Method: method, Params: params})
}

// callsTo returns all recorded calls to the given Bot API method, in order.
func (f *fakeTelegram) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// failWith makes every subsequent call to method return a Bot API error with
// the given description.
func (f *fakeTelegram) failWith(method, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failMethods[method] = description
}

// newTestBot returns a bot client wired to a stubbed Bot API server together
// with the recorder for asserting on the calls it received.
func newTestBot(t *testing.T) (*bot.Bot, *fakeTelegram) {
	t.Helper()

	ft := &fakeTelegram{failMethods: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := path.Base(r.URL.Path)
		ft.record(method, parseBotParams(r))

		ft.mu.Lock()
		desc, fail := ft.failMethods[method]
		ft.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"` + desc + `"}`))
			return
		}
		switch method {
		case "answerCallbackQuery", "deleteMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":99,"date":1,"chat":{"id":1,"type":"private"}}}`))
		}
	}))
	t.Cleanup(srv.Close)

	b, err := bot.New("123:test", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	if err != nil {
		t.Fatalf("failed to build test bot: %v", err)
	}
	return b, ft
}

// parseBotParams flattens a Bot API request body into string form values.
// The client sends multipart form data; composite fields arrive as JSON and
// are kept as their JSON text.
func parseBotParams(r *http.Request) map[string]string {
	params := make(map[string]string)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		raw := make(map[string]any)
		if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					params[k] = s
					continue
				}
				enc, _ := json.Marshal(v)
				params[k] = string(enc)
			}
		}
		return params
	}

	if err := r.ParseMultipartForm(1 << 20); err == nil && r.MultipartForm != nil {
		for k, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				params[k] = values[0]
			}
		}
	}
	return params
}
