package snapshot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"townwatch/internal/clock"
)

const sampleBody = `{
  "success": true,
  "data": {
    "tools": {"logger": {"status": "OK"}, "sqlite": {"status": "FAIL", "message": "locked"}},
    "plugins": {
      "CreateUserPlugin": {"domain": "users", "dependencies": ["sqlite", "logger"]},
      "HealthPlugin": {"domain": "observability", "dependencies": []},
      "LoginPlugin": {"domain": "users"},
      "OrphanPlugin": {"dependencies": null}
    },
    "domains": {"users": {"models": ["User"]}}
  }
}`

func TestDecodePreservesKeyOrder(t *testing.T) {
	snap, err := Decode([]byte(sampleBody))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	got := strings.Join(snap.Plugins.Names(), ",")
	want := "CreateUserPlugin,HealthPlugin,LoginPlugin,OrphanPlugin"
	if got != want {
		t.Fatalf("expected plugin order %s, got %s", want, got)
	}
	if got := strings.Join(snap.Tools.Names(), ","); got != "logger,sqlite" {
		t.Fatalf("unexpected tool order %s", got)
	}

	login, ok := snap.Plugins.Get("LoginPlugin")
	if !ok {
		t.Fatalf("expected LoginPlugin present")
	}
	if login.Dependencies == nil || len(login.Dependencies) != 0 {
		t.Fatalf("expected missing dependencies to default to empty, got %#v", login.Dependencies)
	}
	orphan, _ := snap.Plugins.Get("OrphanPlugin")
	if orphan.Domain != "" || orphan.Dependencies == nil {
		t.Fatalf("unexpected orphan plugin: %#v", orphan)
	}

	sqlite, _ := snap.Tools.Get("sqlite")
	if sqlite.OK() || sqlite.Message != "locked" {
		t.Fatalf("unexpected sqlite tool: %#v", sqlite)
	}
	users, _ := snap.Domains.Get("users")
	if _, ok := users["models"]; !ok {
		t.Fatalf("expected domain metadata to decode, got %#v", users)
	}
}

func TestDecodeDuplicateKeyKeepsFirstPosition(t *testing.T) {
	body := `{"success":true,"data":{"tools":{"a":{"status":"FAIL"},"b":{"status":"OK"},"a":{"status":"OK"}}}}`
	snap, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got := strings.Join(snap.Tools.Names(), ","); got != "a,b" {
		t.Fatalf("expected a,b got %s", got)
	}
	a, _ := snap.Tools.Get("a")
	if !a.OK() {
		t.Fatalf("expected last value to win for duplicate key")
	}
	if snap.Plugins == nil || snap.Domains == nil {
		t.Fatalf("expected missing members to normalize to empty")
	}
}

func TestDecodeFailures(t *testing.T) {
	cases := map[string]struct {
		body string
		want error
	}{
		"not successful": {`{"success": false}`, ErrUnsuccessful},
		"no data":        {`{"success": true}`, ErrNoData},
		"null data":      {`{"success": true, "data": null}`, ErrNoData},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.body)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := Decode([]byte(`<html>oops</html>`)); err == nil {
		t.Fatalf("expected parse error for non-JSON body")
	}
	if _, err := Decode([]byte(`{"success":true,"data":{"tools":[1,2]}}`)); err == nil {
		t.Fatalf("expected error for array tools member")
	}
}

func TestEntriesMarshalInOrder(t *testing.T) {
	e := Entries[ToolStatus]{{Name: "z", Value: ToolStatus{Status: "OK"}}, {Name: "a", Value: ToolStatus{Status: "FAIL"}}}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"z":{"status":"OK"},"a":{"status":"FAIL"}}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestStatusURL(t *testing.T) {
	got, err := StatusURL("https://kernel.example:8443/dashboard/?x=1")
	if err != nil {
		t.Fatalf("StatusURL error: %v", err)
	}
	if got != "https://kernel.example:8443/api/system/info" {
		t.Fatalf("unexpected status URL %s", got)
	}
}

func TestClientFetchIgnoresStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != StatusPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+StatusPath, srv.Client(), time.Second)
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrUnsuccessful) {
		t.Fatalf("expected ErrUnsuccessful, got %v", err)
	}
}

type scriptedFetcher struct {
	results []fetchResult
	calls   int
}

type fetchResult struct {
	snap SystemSnapshot
	err  error
}

func (f *scriptedFetcher) Fetch(context.Context) (SystemSnapshot, error) {
	r := f.results[f.calls]
	f.calls++
	return r.snap, r.err
}

func TestStoreKeepsPriorSnapshotOnFailure(t *testing.T) {
	good, err := Decode([]byte(sampleBody))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	fetcher := &scriptedFetcher{results: []fetchResult{
		{snap: good},
		{err: ErrUnsuccessful},
		{err: errors.New("connection refused")},
	}}
	clk := clock.NewFake(time.Unix(100, 0))
	store := NewStore(fetcher, clk, nil)

	if len(store.Current().Plugins) != 0 || !store.LastRefresh().IsZero() {
		t.Fatalf("expected empty snapshot before first refresh")
	}

	var notified []SystemSnapshot
	store.Subscribe(func(s SystemSnapshot) { notified = append(notified, s) })

	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh error: %v", err)
	}
	clk.Advance(10 * time.Second)
	if err := store.Refresh(context.Background()); !errors.Is(err, ErrUnsuccessful) {
		t.Fatalf("expected ErrUnsuccessful, got %v", err)
	}
	if err := store.Refresh(context.Background()); err == nil {
		t.Fatalf("expected transport error")
	}

	if len(notified) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notified))
	}
	if got := len(store.Current().Plugins); got != 4 {
		t.Fatalf("expected prior snapshot retained with 4 plugins, got %d", got)
	}
	if !store.LastRefresh().Equal(time.Unix(100, 0)) {
		t.Fatalf("expected last refresh at first success, got %v", store.LastRefresh())
	}
}
