package jellyfin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestItem(t *testing.T) {
	var gotAuth, gotFields, gotIDs string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Items" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotFields = r.URL.Query().Get("Fields")
		gotIDs = r.URL.Query().Get("Ids")

		_ = json.NewEncoder(w).Encode(itemsResponse{
			Items: []BaseItem{{ID: "m1", Name: "The Movie", Type: ItemTypeMovie}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "dev-1")
	item, err := client.Item(context.Background(), "m1", "u1")
	if err != nil {
		t.Fatalf("Item returned error: %v", err)
	}
	if item == nil || item.Name != "The Movie" {
		t.Fatalf("unexpected item %+v", item)
	}

	if !strings.Contains(gotAuth, `Token="token123"`) {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotFields != "MediaSources,MediaStreams" {
		t.Fatalf("unexpected fields %q", gotFields)
	}
	if gotIDs != "m1" {
		t.Fatalf("unexpected ids %q", gotIDs)
	}
}

func TestItem_Missing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(itemsResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "dev-1")
	item, err := client.Item(context.Background(), "nope", "u1")
	if err != nil {
		t.Fatalf("Item returned error: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil for missing item, got %+v", item)
	}
}

func TestItem_ClientErrorNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-token", "dev-1")
	if _, err := client.Item(context.Background(), "m1", "u1"); err == nil {
		t.Fatal("expected error for 401 response")
	}
	if calls != 1 {
		t.Fatalf("4xx responses must not be retried, got %d calls", calls)
	}
}

func TestItem_ServerErrorRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(itemsResponse{
			Items: []BaseItem{{ID: "m1", Name: "The Movie"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "dev-1")
	item, err := client.Item(context.Background(), "m1", "u1")
	if err != nil {
		t.Fatalf("Item returned error: %v", err)
	}
	if item == nil {
		t.Fatal("expected item after retry")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (one retry), got %d", calls)
	}
}

func TestEpisodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Shows/s1/Episodes" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("Limit"); got != "1" {
			t.Errorf("unexpected limit %q", got)
		}
		_ = json.NewEncoder(w).Encode(itemsResponse{
			Items: []BaseItem{{ID: "e1", Name: "Pilot", Type: ItemTypeEpisode}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "dev-1")
	eps, err := client.Episodes(context.Background(), "s1", 1, 0)
	if err != nil {
		t.Fatalf("Episodes returned error: %v", err)
	}
	if len(eps) != 1 || eps[0].ID != "e1" {
		t.Fatalf("unexpected episodes %+v", eps)
	}
}

func TestLatestMedia_BareArrayResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/u1/Items/Latest" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]BaseItem{{ID: "m1"}, {ID: "m2"}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "dev-1")
	items, err := client.LatestMedia(context.Background(), "u1", "", 16)
	if err != nil {
		t.Fatalf("LatestMedia returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestNegotiatePlayback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/Items/m1/PlaybackInfo" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}

		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if _, ok := body["DeviceProfile"]; !ok {
			t.Error("expected DeviceProfile in negotiation body")
		}

		_ = json.NewEncoder(w).Encode(PlaybackInfoResponse{
			PlaySessionID: "ps1",
			MediaSources:  []MediaSource{{ID: "src1", Container: "mkv"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123", "dev-1")
	info, err := client.NegotiatePlayback(context.Background(), PlaybackInfoRequest{
		ItemID: "m1", UserID: "u1", MediaSourceID: "src1",
	})
	if err != nil {
		t.Fatalf("NegotiatePlayback returned error: %v", err)
	}
	if info.PlaySessionID != "ps1" {
		t.Fatalf("unexpected play session id %q", info.PlaySessionID)
	}
	if len(info.MediaSources) != 1 {
		t.Fatalf("expected 1 media source, got %d", len(info.MediaSources))
	}
}
