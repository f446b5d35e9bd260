package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siritami/gatewaysync/internal/api"
	"github.com/siritami/gatewaysync/internal/config"
)

// fakeGateway serves the account-scoped list and rule endpoints backed by
// in-memory state.
type fakeGateway struct {
	mu      sync.Mutex
	lists   []api.List
	rules   []api.Rule
	deleted []string
	created []string
	traffic string
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	base := "/accounts/acct/gateway"

	mux.HandleFunc(base+"/lists", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			writeEnvelope(w, g.lists)
		case http.MethodPost:
			var body struct {
				Name  string `json:"name"`
				Items []struct {
					Value string `json:"value"`
				} `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			list := api.List{ID: fmt.Sprintf("list-%d", len(g.created)+1), Name: body.Name, Count: len(body.Items)}
			g.created = append(g.created, "list:"+body.Name)
			writeEnvelope(w, list)
		default:
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(base+"/lists/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.deleted = append(g.deleted, "list:"+strings.TrimPrefix(r.URL.Path, base+"/lists/"))
		writeEnvelope(w, nil)
	})
	mux.HandleFunc(base+"/rules", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			writeEnvelope(w, g.rules)
		case http.MethodPost:
			var body struct {
				Name    string `json:"name"`
				Traffic string `json:"traffic"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			g.created = append(g.created, "rule:"+body.Name)
			g.traffic = body.Traffic
			writeEnvelope(w, api.Rule{ID: "rule-new", Name: body.Name})
		default:
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(base+"/rules/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.deleted = append(g.deleted, "rule:"+strings.TrimPrefix(r.URL.Path, base+"/rules/"))
		writeEnvelope(w, nil)
	})
	return mux
}

func writeEnvelope(w http.ResponseWriter, result any) {
	raw, _ := json.Marshal(result)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"errors":  []any{},
		"result":  json.RawMessage(raw),
	})
}

func newTestSyncer(t *testing.T, g *fakeGateway) *Syncer {
	t.Helper()
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{AccountID: "acct", APIHost: srv.URL, APIToken: "tok"}
	client := api.New(cfg, srv.Client(), nil)
	return New(client, nil, "gatewaysync")
}

func TestApplyReconciles(t *testing.T) {
	g := &fakeGateway{
		lists: []api.List{
			{ID: "old-managed", Name: "gatewaysync - chunk 001"},
			{ID: "unrelated", Name: "someone else's list"},
		},
		rules: []api.Rule{
			{ID: "old-rule", Name: "gatewaysync block rule"},
			{ID: "keep-rule", Name: "corporate policy"},
		},
	}
	s := newTestSyncer(t, g)

	require.NoError(t, s.Apply(context.Background(), []string{"a.example.com", "b.example.com"}))

	g.mu.Lock()
	defer g.mu.Unlock()
	require.Equal(t, []string{"rule:old-rule", "list:old-managed"}, g.deleted, "only managed objects may be deleted")
	require.Equal(t, []string{"list:gatewaysync - chunk 001", "rule:gatewaysync block rule"}, g.created)
	require.Equal(t, `any(dns.domains[*] in $list1)`, g.traffic)
}

func TestApplyEmptySetCreatesNoRule(t *testing.T) {
	g := &fakeGateway{}
	s := newTestSyncer(t, g)

	require.NoError(t, s.Apply(context.Background(), nil))

	g.mu.Lock()
	defer g.mu.Unlock()
	require.Empty(t, g.created)
	require.Empty(t, g.deleted)
}

func TestTeardown(t *testing.T) {
	g := &fakeGateway{
		lists: []api.List{{ID: "l1", Name: "gatewaysync - chunk 001"}},
		rules: []api.Rule{{ID: "r1", Name: "gatewaysync block rule"}},
	}
	s := newTestSyncer(t, g)

	require.NoError(t, s.Teardown(context.Background()))

	g.mu.Lock()
	defer g.mu.Unlock()
	require.Equal(t, []string{"rule:r1", "list:l1"}, g.deleted)
	require.Empty(t, g.created)
}

func TestChunk(t *testing.T) {
	var entries []string
	for i := 0; i < 2500; i++ {
		entries = append(entries, fmt.Sprintf("d%d.example.com", i))
	}
	chunks := chunk(entries, 1000)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 1000)
	require.Len(t, chunks[1], 1000)
	require.Len(t, chunks[2], 500)
	require.Equal(t, "d0.example.com", chunks[0][0])
	require.Equal(t, "d2499.example.com", chunks[2][499])

	require.Empty(t, chunk(nil, 1000))
}
