package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name         string
		pageText     string
		wantUsername string
		wantMinutes  int
		wantErr      error
	}{
		{
			name:         "primary pattern",
			pageText:     "Welcome back!\nUsername: alice\nTotal Use: 500 Minutes this month",
			wantUsername: "alice",
			wantMinutes:  500,
		},
		{
			name:         "primary pattern case insensitive",
			pageText:     "username: bob\ntotal use: 12000 minute",
			wantUsername: "bob",
			wantMinutes:  12000,
		},
		{
			name:         "fallback large number",
			pageText:     "Your plan includes 8500 Minutes of access",
			wantUsername: "unknown",
			wantMinutes:  8500,
		},
		{
			name:         "fallback keeps username when present",
			pageText:     "Username: carol\nRemaining 4200 Minutes",
			wantUsername: "carol",
			wantMinutes:  4200,
		},
		{
			name:     "fallback rejects small numbers",
			pageText: "You used 42 Minutes",
			wantErr:  ErrNoDataFound,
		},
		{
			name:     "no data",
			pageText: "Please log in to view your account",
			wantErr:  ErrNoDataFound,
		},
		{
			name:     "empty page",
			pageText: "",
			wantErr:  ErrNoDataFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Extract(tt.pageText)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if result.Username != tt.wantUsername {
				t.Errorf("username = %q, want %q", result.Username, tt.wantUsername)
			}
			if result.Minutes != tt.wantMinutes {
				t.Errorf("minutes = %d, want %d", result.Minutes, tt.wantMinutes)
			}
		})
	}
}

func TestPageTextStripsMarkup(t *testing.T) {
	page := `<html><head><script>var x = "Total Use: 99999 Minute";</script></head>
<body><div>Username:</div> <b>alice</b><p>Total Use: <span>500</span> Minute</p></body></html>`

	text := pageText(page)
	result, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Username != "alice" || result.Minutes != 500 {
		t.Errorf("got %+v, want alice/500", result)
	}
}

func TestClientFetchUsageDashboard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Username: alice<br>Total Use: 500 Minute</body></html>`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.FetchUsage(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("FetchUsage failed: %v", err)
	}
	if result.Username != "alice" || result.Minutes != 500 {
		t.Errorf("got %+v, want alice/500", result)
	}
}

func TestClientFetchUsageWithLogin(t *testing.T) {
	loggedIn := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
			if r.PostForm.Get("user_email") == "alice" && r.PostForm.Get("user_pass") == "secret" {
				loggedIn = true
				_, _ = w.Write([]byte(`<html><body>Username: alice<br>Total Use: 8500 Minute</body></html>`))
				return
			}
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`<html><body><form action="/login" method="post">
<input name="user_email" type="email">
<input name="user_pass" type="password">
</form></body></html>`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.FetchUsage(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("FetchUsage failed: %v", err)
	}
	if !loggedIn {
		t.Fatal("expected the client to submit the login form")
	}
	if result.Minutes != 8500 {
		t.Errorf("minutes = %d, want 8500", result.Minutes)
	}
}

func TestClientFetchUsageNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Nothing to see here</body></html>`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FetchUsage(context.Background(), "alice", "secret")
	if !errors.Is(err, ErrNoDataFound) {
		t.Fatalf("expected ErrNoDataFound, got %v", err)
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	client, err := NewClient(Config{URL: url}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}
