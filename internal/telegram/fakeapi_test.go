package telegram

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sync"
	"testing"
	"time"
)

// fakeAPI is a minimal Bot API server
type fakeAPI struct {
	server *httptest.Server

	mu            sync.Mutex
	token         string
	updates       []string
	copyResponses []string
	updateErrors  []string
	calls         map[string][]url.Values
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{token: "42:good", calls: map[string][]url.Values{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) options() Options {
	return Options{Endpoint: f.server.URL + "/bot%s/%s", PollTimeout: 0}
}

func (f *fakeAPI) pushUpdate(raw string) {
	f.mu.Lock()
	f.updates = append(f.updates, raw)
	f.mu.Unlock()
}

// setToken changes the token the server accepts, as a revocation would
func (f *fakeAPI) setToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

// pushUpdateError makes the next getUpdates call fail with raw
func (f *fakeAPI) pushUpdateError(raw string) {
	f.mu.Lock()
	f.updateErrors = append(f.updateErrors, raw)
	f.mu.Unlock()
}

func (f *fakeAPI) pushCopyResponse(raw string) {
	f.mu.Lock()
	f.copyResponses = append(f.copyResponses, raw)
	f.mu.Unlock()
}

func (f *fakeAPI) requests(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.calls[method]...)
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	method := path.Base(r.URL.Path)
	token := path.Base(path.Dir(r.URL.Path))

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.PostForm)
	accepted := f.token
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if token != "bot"+accepted {
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
		return
	}

	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
	case "getUpdates":
		f.mu.Lock()
		if len(f.updateErrors) > 0 {
			resp := f.updateErrors[0]
			f.updateErrors = f.updateErrors[1:]
			f.mu.Unlock()
			fmt.Fprint(w, resp)
			return
		}
		pending := f.updates
		f.updates = nil
		f.mu.Unlock()
		if len(pending) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		fmt.Fprint(w, `{"ok":true,"result":[`)
		for i, u := range pending {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, u)
		}
		fmt.Fprint(w, `]}`)
	case "copyMessage":
		f.mu.Lock()
		resp := `{"ok":true,"result":{"message_id":1}}`
		if len(f.copyResponses) > 0 {
			resp = f.copyResponses[0]
			f.copyResponses = f.copyResponses[1:]
		}
		f.mu.Unlock()
		fmt.Fprint(w, resp)
	case "sendMessage":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":2,"date":0,"chat":{"id":%s,"type":"private"},"text":"ok"}}`,
			r.PostForm.Get("chat_id"))
	default:
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}
