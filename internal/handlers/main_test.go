package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	legalwebui "github.com/MegaGrindStone/legal-web-ui"
	"github.com/MegaGrindStone/legal-web-ui/internal/handlers"
	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"github.com/MegaGrindStone/legal-web-ui/internal/session"
)

type mockCompleter struct {
	res     models.Completion
	err     error
	release chan struct{}
}

type mockDiagnostics struct {
	records []models.CompletionRecord
	err     error
}

func TestNewMain(t *testing.T) {
	main, err := handlers.NewMain(session.NewManager(&mockCompleter{}, discardLogger()), nil, discardLogger())
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}

	if main.Shutdown(context.Background()) != nil {
		t.Error("Shutdown() should not return error")
	}
}

func TestHandleHome(t *testing.T) {
	srv, _ := newTestServer(t, &mockCompleter{}, nil)

	res := do(t, srv, http.MethodGet, "/", nil)

	if res.code != http.StatusOK {
		t.Fatalf("HandleHome() status = %v, want %v", res.code, http.StatusOK)
	}

	wants := []string{prompts.Templates()[0].Title, "/templates/3", `hx-post="/chats"`}
	for _, want := range wants {
		if !strings.Contains(res.body, want) {
			t.Errorf("HandleHome() body does not contain %q", want)
		}
	}
}

func TestHandleChats(t *testing.T) {
	comp := &mockCompleter{
		res:     models.Completion{Text: "Оферта это предложение заключить договор."},
		release: make(chan struct{}),
	}
	srv, mgr := newTestServer(t, comp, nil)

	tests := []struct {
		name       string
		message    string
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "Empty message",
			message:    "",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "Whitespace message",
			message:    "   ",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "Accepted message",
			message:    "Что такое оферта?",
			wantStatus: http.StatusOK,
			wantBody:   []string{"Что такое оферта?", "/sse/messages?message_id="},
		},
		{
			name:       "Rejected while pending",
			message:    "Ещё вопрос",
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, srv, http.MethodPost, "/chats", url.Values{"message": {tt.message}})

			if res.code != tt.wantStatus {
				t.Errorf("HandleChats() status = %v, want %v", res.code, tt.wantStatus)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(res.body, want) {
					t.Errorf("HandleChats() body = %v, want to contain %v", res.body, want)
				}
			}
		})
	}

	pending := mgr.Snapshot()
	if got := len(pending.Messages); got != 3 {
		t.Fatalf("messages = %d, want 3", got)
	}

	placeholder := pending.Messages[2]
	if res := do(t, srv, http.MethodGet, "/messages/"+placeholder.ID, nil); res.code != http.StatusNoContent {
		t.Errorf("HandleMessage() on a searching placeholder status = %v, want %v", res.code, http.StatusNoContent)
	}

	close(comp.release)
	s := waitSettled(t, mgr)

	last := s.Messages[len(s.Messages)-1]
	if last.Content != comp.res.Text {
		t.Errorf("reply = %q, want %q", last.Content, comp.res.Text)
	}

	res := do(t, srv, http.MethodGet, "/messages/"+last.ID, nil)
	if res.code != http.StatusOK {
		t.Fatalf("HandleMessage() status = %v, want %v", res.code, http.StatusOK)
	}
	if !strings.Contains(res.body, "Оферта") {
		t.Errorf("HandleMessage() body = %v, want rendered reply", res.body)
	}
	if strings.Contains(res.body, "message_id="+last.ID) {
		t.Error("HandleMessage() resolved message should not subscribe to SSE")
	}
}

func TestHandleChatsRendersTurn(t *testing.T) {
	comp := &mockCompleter{release: make(chan struct{})}
	srv, mgr := newTestServer(t, comp, nil)
	defer close(comp.release)

	res := do(t, srv, http.MethodPost, "/chats", url.Values{"message": {"Что такое оферта?"}})

	if res.code != http.StatusOK {
		t.Fatalf("HandleChats() status = %v, want %v", res.code, http.StatusOK)
	}
	if !strings.HasPrefix(res.contentType, "text/html") {
		t.Errorf("HandleChats() content type = %q, want text/html", res.contentType)
	}

	s := mgr.Snapshot()
	user, placeholder := s.Messages[1], s.Messages[2]

	userIdx := strings.Index(res.body, `id="msg-`+user.ID+`"`)
	placeholderIdx := strings.Index(res.body, `id="msg-`+placeholder.ID+`"`)
	if userIdx == -1 || placeholderIdx == -1 {
		t.Fatalf("HandleChats() body = %v, want both the user message and the placeholder", res.body)
	}
	if userIdx > placeholderIdx {
		t.Error("HandleChats() should render the user message before the placeholder")
	}
}

func TestHandleSSEPublishesReply(t *testing.T) {
	comp := &mockCompleter{
		res: models.Completion{
			Text: "Оферта это предложение заключить договор.",
			Sources: []models.Source{
				{Title: "Гражданский кодекс", URI: "https://example.com/gk"},
				{Title: "Гражданский кодекс, копия", URI: "https://example.com/gk"},
			},
		},
		release: make(chan struct{}),
	}
	h, mgr := newTestServer(t, comp, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	placeholderID := postChat(t, srv, mgr, "Что такое оферта?")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The SSE server sends headers only with the first event, so the subscription has to run
	// concurrently with the release of the completer.
	received := subscribe(ctx, srv, placeholderID, `class="timestamp"`)

	time.Sleep(200 * time.Millisecond)
	close(comp.release)

	stream := <-received
	cancel()

	wants := []string{"event: message", "Оферта это предложение заключить договор.", "Гражданский кодекс",
		`id="msg-` + placeholderID + `"`}
	for _, want := range wants {
		if !strings.Contains(stream, want) {
			t.Errorf("SSE stream = %q, want to contain %q", stream, want)
		}
	}
	if strings.Contains(stream, "копия") {
		t.Errorf("SSE stream = %q, duplicate sources should be dropped", stream)
	}
}

func TestHandleSSEDropsStaleReply(t *testing.T) {
	comp := &mockCompleter{
		res:     models.Completion{Text: "Устаревший ответ"},
		release: make(chan struct{}),
	}
	h, mgr := newTestServer(t, comp, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	placeholderID := postChat(t, srv, mgr, "Вопрос")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	received := subscribe(ctx, srv, placeholderID, "Устаревший ответ")

	time.Sleep(200 * time.Millisecond)
	mgr.NewSession()
	close(comp.release)

	stream := <-received
	if strings.Contains(stream, "Устаревший ответ") {
		t.Errorf("SSE stream = %q, a reply for a replaced session should not be published", stream)
	}
	for _, msg := range mgr.Snapshot().Messages {
		if msg.ID == placeholderID {
			t.Error("replaced session placeholder should not come back")
		}
	}
}

func TestHandleMessageNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &mockCompleter{}, nil)

	res := do(t, srv, http.MethodGet, "/messages/unknown", nil)

	if res.code != http.StatusNotFound {
		t.Errorf("HandleMessage() status = %v, want %v", res.code, http.StatusNotFound)
	}
}

func TestHandleNewSession(t *testing.T) {
	comp := &mockCompleter{res: models.Completion{Text: "Ответ"}}
	srv, mgr := newTestServer(t, comp, nil)

	do(t, srv, http.MethodPost, "/chats", url.Values{"message": {"Вопрос"}})
	waitSettled(t, mgr)
	mgr.SelectTemplate("Черновик")

	res := do(t, srv, http.MethodPost, "/sessions/new", nil)

	if res.code != http.StatusOK {
		t.Fatalf("HandleNewSession() status = %v, want %v", res.code, http.StatusOK)
	}
	if strings.Contains(res.body, "Вопрос") {
		t.Error("HandleNewSession() body should not contain messages of the previous session")
	}
	if !strings.Contains(res.body, `id="messages"`) {
		t.Errorf("HandleNewSession() body = %v, want the chatbox", res.body)
	}

	s := mgr.Snapshot()
	if len(s.Messages) != 1 || s.Messages[0].Content != prompts.Welcome {
		t.Errorf("session messages = %+v, want only the welcome message", s.Messages)
	}
	if s.Draft != "" {
		t.Errorf("draft = %q, want empty", s.Draft)
	}
}

func TestHandleTemplate(t *testing.T) {
	srv, mgr := newTestServer(t, &mockCompleter{}, nil)

	tests := []struct {
		name       string
		index      string
		wantStatus int
		wantDraft  string
	}{
		{
			name:       "Valid index",
			index:      "1",
			wantStatus: http.StatusOK,
			wantDraft:  prompts.Templates()[1].Prompt,
		},
		{
			name:       "Out of range",
			index:      "99",
			wantStatus: http.StatusNotFound,
			wantDraft:  prompts.Templates()[1].Prompt,
		},
		{
			name:       "Not a number",
			index:      "abc",
			wantStatus: http.StatusBadRequest,
			wantDraft:  prompts.Templates()[1].Prompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, srv, http.MethodPost, "/templates/"+tt.index, nil)

			if res.code != tt.wantStatus {
				t.Errorf("HandleTemplate() status = %v, want %v", res.code, tt.wantStatus)
			}
			if got := mgr.Draft(); got != tt.wantDraft {
				t.Errorf("Draft() = %q, want %q", got, tt.wantDraft)
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(res.body, `name="message"`) {
				t.Errorf("HandleTemplate() body = %v, want the input box", res.body)
			}
		})
	}
}

func TestHandleSession(t *testing.T) {
	srv, _ := newTestServer(t, &mockCompleter{}, nil)

	res := do(t, srv, http.MethodGet, "/api/session", nil)

	if res.code != http.StatusOK {
		t.Fatalf("HandleSession() status = %v, want %v", res.code, http.StatusOK)
	}

	var s session.Session
	if err := json.Unmarshal([]byte(res.body), &s); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if len(s.Messages) != 1 || s.Messages[0].Role != models.RoleAssistant {
		t.Errorf("session messages = %+v, want the welcome message", s.Messages)
	}
	if s.Pending {
		t.Error("session should not be pending")
	}
}

func TestHandleDiagnostics(t *testing.T) {
	records := []models.CompletionRecord{
		{ID: "2", Provider: "gemini", Model: "m", Turns: 3},
		{ID: "1", Provider: "gemini", Model: "m", Turns: 1, Error: "boom"},
	}

	tests := []struct {
		name        string
		diagnostics handlers.Diagnostics
		query       string
		wantStatus  int
		wantIDs     []string
	}{
		{
			name:       "No diagnostics",
			wantStatus: http.StatusOK,
			wantIDs:    []string{},
		},
		{
			name:        "Records",
			diagnostics: &mockDiagnostics{records: records},
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"2", "1"},
		},
		{
			name:        "Limit",
			diagnostics: &mockDiagnostics{records: records},
			query:       "?limit=1",
			wantStatus:  http.StatusOK,
			wantIDs:     []string{"2"},
		},
		{
			name:        "Invalid limit",
			diagnostics: &mockDiagnostics{records: records},
			query:       "?limit=-1",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "Store error",
			diagnostics: &mockDiagnostics{err: errors.New("closed")},
			wantStatus:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &mockCompleter{}, tt.diagnostics)

			res := do(t, srv, http.MethodGet, "/api/diagnostics"+tt.query, nil)

			if res.code != tt.wantStatus {
				t.Fatalf("HandleDiagnostics() status = %v, want %v", res.code, tt.wantStatus)
			}
			if tt.wantIDs == nil {
				return
			}

			var body struct {
				Records []models.CompletionRecord `json:"records"`
			}
			if err := json.Unmarshal([]byte(res.body), &body); err != nil {
				t.Fatalf("failed to decode records: %v", err)
			}
			if body.Records == nil {
				t.Fatal("records should be an empty list, not null")
			}
			if len(body.Records) != len(tt.wantIDs) {
				t.Fatalf("records = %d, want %d", len(body.Records), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if body.Records[i].ID != id {
					t.Errorf("records[%d].ID = %q, want %q", i, body.Records[i].ID, id)
				}
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, &mockCompleter{}, nil)

	res := do(t, srv, http.MethodGet, "/healthz", nil)

	if res.code != http.StatusOK || res.body != "OK" {
		t.Errorf("HandleHealth() = %v %q, want 200 OK", res.code, res.body)
	}
}

func TestRoutesStatic(t *testing.T) {
	srv, _ := newTestServer(t, &mockCompleter{}, nil)

	res := do(t, srv, http.MethodGet, "/static/styles.css", nil)

	if res.code != http.StatusOK {
		t.Errorf("static status = %v, want %v", res.code, http.StatusOK)
	}
}

func TestRoutesMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &mockCompleter{}, nil)

	res := do(t, srv, http.MethodGet, "/chats", nil)

	if res.code != http.StatusMethodNotAllowed {
		t.Errorf("GET /chats status = %v, want %v", res.code, http.StatusMethodNotAllowed)
	}
}

type response struct {
	code        int
	contentType string
	body        string
}

func newTestServer(t *testing.T, comp session.Completer, diag handlers.Diagnostics) (http.Handler, *session.Manager) {
	t.Helper()

	mgr := session.NewManager(comp, discardLogger(), session.WithTimeout(5*time.Second))
	main, err := handlers.NewMain(mgr, diag, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = main.Shutdown(context.Background())
	})

	return main.Routes(handlers.RouterConfig{StaticFS: staticFS(t)}), mgr
}

func staticFS(t *testing.T) fs.FS {
	t.Helper()

	sub, err := fs.Sub(legalwebui.StaticFS, "static")
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) response {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	return response{code: w.Code, contentType: w.Header().Get("Content-Type"), body: w.Body.String()}
}

// postChat submits text through a running server and returns the id of the created placeholder.
func postChat(t *testing.T, srv *httptest.Server, mgr *session.Manager, text string) string {
	t.Helper()

	resp, err := srv.Client().PostForm(srv.URL+"/chats", url.Values{"message": {text}})
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /chats status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	s := mgr.Snapshot()
	placeholder := s.Messages[len(s.Messages)-1]
	if !placeholder.IsSearching {
		t.Fatalf("last message %+v is not a searching placeholder", placeholder)
	}
	return placeholder.ID
}

// subscribe listens on the SSE topic of messageID until the stream contains until or ctx is done, then
// sends everything read so far.
func subscribe(ctx context.Context, srv *httptest.Server, messageID, until string) <-chan string {
	received := make(chan string, 1)

	go func() {
		var sb strings.Builder
		defer func() {
			received <- sb.String()
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			srv.URL+"/sse/messages?message_id="+url.QueryEscape(messageID), nil)
		if err != nil {
			return
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			sb.WriteString(scanner.Text())
			sb.WriteString("\n")
			if strings.Contains(sb.String(), until) {
				return
			}
		}
	}()

	return received
}

func waitSettled(t *testing.T, mgr *session.Manager) session.Session {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := mgr.Snapshot()
		if !s.Pending {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session still pending")
	return session.Session{}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (m *mockCompleter) Complete(ctx context.Context, _ []models.Message, _ string) (models.Completion, error) {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return models.Completion{}, ctx.Err()
		}
	}
	return m.res, m.err
}

func (m *mockDiagnostics) Records(_ context.Context, limit int) ([]models.CompletionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}
