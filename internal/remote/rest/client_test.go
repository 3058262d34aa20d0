package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"goalplanner/internal/core"
	"goalplanner/internal/remote"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestFetchAllAcceptsNumericIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/goals" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"id":7,"name":"Car","category":"Vehicle","targetAmount":1000,"savedAmount":"250.5","deadline":"2025-05-01","createdAt":"2024-01-01"},{"id":"abc","name":"Trip","targetAmount":10,"savedAmount":0,"deadline":"2025-06-01"}]`)
	})

	goals, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(goals) != 2 || goals[0].ID != "7" || goals[1].ID != "abc" {
		t.Fatalf("unexpected goals: %+v", goals)
	}
	if !goals[0].SavedAmount.Equal(core.MustParseMoney("250.5")) {
		t.Fatalf("unexpected saved amount %s", goals[0].SavedAmount)
	}
}

func TestCreateSendsZeroSavedAndNoID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method %s", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if _, ok := body["id"]; ok {
			t.Errorf("create body must not carry an id")
		}
		if body["savedAmount"] != float64(0) {
			t.Errorf("savedAmount = %v", body["savedAmount"])
		}
		body["id"] = 42
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	})

	g, err := c.Create(context.Background(), core.Draft{
		Name: "Car", Category: "Vehicle", TargetAmount: core.MoneyFromInt(500),
		Deadline: core.NewDate(2026, 1, 1), CreatedAt: core.NewDate(2025, 1, 1),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID != "42" || g.Name != "Car" || !g.SavedAmount.IsZero() {
		t.Fatalf("unexpected goal %+v", g)
	}
}

func TestPatchSendsOnlySetFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/goals/g1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		if strings.TrimSpace(string(b)) != `{"savedAmount":60}` {
			t.Errorf("unexpected body %s", b)
		}
		_, _ = io.WriteString(w, `{"id":"g1","name":"x","targetAmount":100,"savedAmount":60,"deadline":"2025-01-01"}`)
	})

	saved := core.MoneyFromInt(60)
	g, err := c.Patch(context.Background(), "g1", core.Patch{SavedAmount: &saved})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !g.SavedAmount.Equal(saved) {
		t.Fatalf("unexpected goal %+v", g)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
		status  int
	}{
		{
			name: "server 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want:   remote.ErrServer,
			status: http.StatusInternalServerError,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want:   remote.ErrServer,
			status: http.StatusNotFound,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"id":`)
			},
			want:   remote.ErrServer,
			status: http.StatusOK,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			_, err := c.Replace(context.Background(), "1", core.Goal{Name: "x"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var re *remote.Error
			if !errors.As(err, &re) || re.StatusCode != tc.status {
				t.Fatalf("unexpected status in %v", err)
			}
		})
	}
}

func TestNetworkErrorOnUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Delete(context.Background(), "1"); !errors.Is(err, remote.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := New(srv.URL, WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.FetchAll(context.Background()); !errors.Is(err, remote.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("localhost"); err == nil {
		t.Fatalf("expected error for url without scheme")
	}
}
