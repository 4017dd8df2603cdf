package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"smbtempest/internal/metrics"
	"smbtempest/internal/workload"
)

func seededAggregator(t *testing.T) *metrics.Aggregator {
	t.Helper()
	agg := metrics.NewAggregator()
	err := agg.Fold(workload.Result{
		SessionID: "s1",
		Ops:       10,
		BytesRead: 4096,
		Elapsed:   time.Second,
		Status:    workload.StatusSucceeded,
	})
	if err != nil {
		t.Fatal(err)
	}
	return agg
}

func TestSnapshotEndpoint(t *testing.T) {
	agg := seededAggregator(t)
	srv := httptest.NewServer(New("", agg, nil).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Folded != 1 || snap.BytesRead != 4096 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestWebSocketStreamEndsWhenFrozen(t *testing.T) {
	agg := seededAggregator(t)
	s := New("", agg, nil)
	s.interval = 10 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// First frame arrives while the run is live.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap metrics.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Frozen {
		t.Fatal("first frame already frozen")
	}

	agg.Freeze()

	// The stream delivers the frozen snapshot and then closes.
	sawFrozen := false
	for {
		if err := conn.ReadJSON(&snap); err != nil {
			break
		}
		if snap.Frozen {
			sawFrozen = true
		}
	}
	if !sawFrozen {
		t.Error("stream closed without a frozen frame")
	}
}
