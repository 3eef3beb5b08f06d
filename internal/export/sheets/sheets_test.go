package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"caisse/internal/ledger"
)

type fakeSheets struct {
	mu      sync.Mutex
	tabs    []string
	added   []string
	cleared []string
	written [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
		var sheets []map[string]any
		for _, t := range f.tabs {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct{ Title string } `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
			f.tabs = append(f.tabs, rq.AddSheet.Properties.Title)
		}
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(path[strings.LastIndex(path, "/values/")+len("/values/"):], ":clear")
		f.cleared = append(f.cleared, rng)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.written = vr.Values
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": "amount_total_encaissements!A1:F2"})
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := NewWithOptions(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestExport_CreatesTabAndWritesTable(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"Feuille 1"}}
	c := newTestClient(t, fake)

	rows := []ledger.Row{{
		ID: 3, Date: "20/03/2024", Time: "09h30", Service: "Coupe",
		Employee: ledger.Employee{Username: "jsmith", FirstName: "John", LastName: "Smith"},
		Amount:   decimal.RequireFromString("12.5"),
	}}
	rng, err := c.Export(context.Background(), ledger.BucketTotal, rows)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if rng != "amount_total_encaissements!A1:F2" {
		t.Fatalf("range = %q", rng)
	}
	if len(fake.added) != 1 || fake.added[0] != "amount_total_encaissements" {
		t.Fatalf("expected tab creation, got %v", fake.added)
	}
	if len(fake.cleared) != 1 || fake.cleared[0] != "amount_total_encaissements" {
		t.Fatalf("expected tab clear, got %v", fake.cleared)
	}
	if len(fake.written) != 2 {
		t.Fatalf("expected header and one row, got %v", fake.written)
	}
	if fake.written[1][1] != "John Smith" || fake.written[1][5] != "12.50" {
		t.Fatalf("unexpected row: %v", fake.written[1])
	}
}

func TestExport_ReusesExistingTab(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"amount_jour_encaissements"}}
	c := newTestClient(t, fake)

	if _, err := c.Export(context.Background(), ledger.BucketDay, nil); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(fake.added) != 0 {
		t.Fatalf("tab should not be recreated: %v", fake.added)
	}
	if len(fake.written) != 1 {
		t.Fatalf("empty export writes the header only, got %v", fake.written)
	}
}

func TestNew_RequiresCredentialsAndID(t *testing.T) {
	if _, err := NewWithOptions(context.Background(), " ", option.WithoutAuthentication()); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), "sheet-1", Credentials{}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if _, err := New(context.Background(), "sheet-1", Credentials{File: "/does/not/exist.json"}); err == nil {
		t.Fatal("expected error for unreadable credentials file")
	}
}

func TestExport_NilClient(t *testing.T) {
	var c *Client
	if _, err := c.Export(context.Background(), ledger.BucketTotal, nil); err == nil {
		t.Fatal("expected error")
	}
}
