package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddsview/oddsview/internal/connection"
	"github.com/oddsview/oddsview/internal/odds"
	"github.com/oddsview/oddsview/internal/protocol"
)

func testConfig(url string) connection.Config {
	cfg := connection.DefaultConfig()
	cfg.URL = url
	cfg.ReconnectBaseDelay = 5 * time.Millisecond
	cfg.ReconnectMaxDelay = 40 * time.Millisecond
	cfg.PingInterval = time.Hour
	return cfg
}

func newTestApp(opts Options) *App {
	return New(testConfig("ws://localhost:1"), slog.Default(), opts)
}

func completeSelection(a *App) {
	a.SelectSport("NHL")
	a.SelectGame("g1")
	a.SelectMarket("Moneyline")
}

func snapshotMsg(gameID, market string, books odds.Books) protocol.Snapshot {
	return protocol.Snapshot{
		Sport:    "NHL",
		GameID:   gameID,
		HomeTeam: "Bruins",
		AwayTeam: "Rangers",
		Market:   market,
		Odds:     books,
	}
}

func TestSelectionCascade(t *testing.T) {
	a := newTestApp(Options{})
	defer a.Stop(context.Background())

	completeSelection(a)
	if sel := a.Selection(); !sel.Complete() {
		t.Fatalf("selection = %+v, want complete", sel)
	}
	if !a.Loading() {
		t.Error("complete selection should enter loading state")
	}

	// Changing the game clears the market.
	a.SelectGame("g2")
	sel := a.Selection()
	if sel.GameID != "g2" || sel.Market != "" {
		t.Errorf("selection after game change = %+v", sel)
	}
	if sel.Complete() {
		t.Error("selection should be incomplete after game change")
	}

	// Changing the sport clears game and market.
	a.SelectMarket("Spread")
	a.SelectSport("NBA")
	sel = a.Selection()
	if sel.Sport != "NBA" || sel.GameID != "" || sel.Market != "" {
		t.Errorf("selection after sport change = %+v", sel)
	}
}

func TestIncompleteSelectionClearsState(t *testing.T) {
	a := newTestApp(Options{})
	defer a.Stop(context.Background())

	completeSelection(a)
	a.handleMessage(snapshotMsg("g1", "Moneyline", odds.Books{
		"draftkings": {"ml_home": {OutcomeName: "Moneyline", Odds: odds.String("-120"), Target: odds.String("Bruins")}},
	}))
	if len(a.Rows()) != 1 {
		t.Fatalf("rows = %d, want 1", len(a.Rows()))
	}

	a.SelectGame("g2")
	if got := a.Rows(); len(got) != 0 {
		t.Errorf("rows after selection change = %d, want 0", len(got))
	}
	if a.Loading() {
		t.Error("incomplete selection should not be loading")
	}
}

func TestStaleMessagesDropped(t *testing.T) {
	a := newTestApp(Options{})
	defer a.Stop(context.Background())

	completeSelection(a)

	// Snapshot for a different game is ignored.
	a.handleMessage(snapshotMsg("other", "Moneyline", odds.Books{
		"draftkings": {"ml_home": {OutcomeName: "Moneyline", Odds: odds.String("-120"), Target: odds.String("Bruins")}},
	}))
	if len(a.Rows()) != 0 {
		t.Error("stale snapshot applied")
	}

	// Matching snapshot lands.
	a.handleMessage(snapshotMsg("g1", "Moneyline", odds.Books{
		"draftkings": {"ml_home": {OutcomeName: "Moneyline", Odds: odds.String("-120"), Target: odds.String("Bruins")}},
	}))
	if len(a.Rows()) != 1 {
		t.Fatal("matching snapshot not applied")
	}

	// Update for a different market is ignored.
	a.handleMessage(protocol.Update{
		Sport: "NHL", GameID: "g1", Market: "Spread",
		Odds: odds.Books{"draftkings": {"ml_home": {OutcomeName: "Moneyline", Odds: nil}}},
	})
	if len(a.Rows()) != 1 {
		t.Error("stale update applied")
	}
}

func TestUpdateFeedsMovementTracker(t *testing.T) {
	a := newTestApp(Options{})
	defer a.Stop(context.Background())

	completeSelection(a)
	a.handleMessage(snapshotMsg("g1", "Moneyline", odds.Books{
		"draftkings": {"ml_home": {OutcomeName: "Moneyline", Odds: odds.String("-120"), Target: odds.String("Bruins")}},
	}))

	a.handleMessage(protocol.Update{
		Sport: "NHL", GameID: "g1", Market: "Moneyline",
		Odds: odds.Books{
			"draftkings": {"ml_home": {
				OutcomeName:  "Moneyline",
				Odds:         odds.String("-110"),
				PreviousOdds: odds.String("-120"),
				Target:       odds.String("Bruins"),
			}},
		},
	})

	moves := a.Movements()
	if dir, ok := moves["draftkings|ml_home"]; !ok || dir != "up" {
		t.Errorf("movement = %v", moves)
	}
}

func TestSnapshotClearsMovement(t *testing.T) {
	a := newTestApp(Options{})
	defer a.Stop(context.Background())

	completeSelection(a)
	a.handleMessage(protocol.Update{
		Sport: "NHL", GameID: "g1", Market: "Moneyline",
		Odds: odds.Books{
			"draftkings": {"ml_home": {
				OutcomeName:  "Moneyline",
				Odds:         odds.String("-110"),
				PreviousOdds: odds.String("-120"),
			}},
		},
	})
	if len(a.Movements()) != 1 {
		t.Fatal("movement not recorded")
	}

	a.handleMessage(snapshotMsg("g1", "Moneyline", odds.Books{}))
	if got := a.Movements(); len(got) != 0 {
		t.Errorf("movements after snapshot = %v, want none", got)
	}
}

func TestServerErrorForwarded(t *testing.T) {
	var got string
	a := newTestApp(Options{OnServerError: func(msg string) { got = msg }})
	defer a.Stop(context.Background())

	a.handleMessage(protocol.ServerError{Message: "unknown sport"})
	if got != "unknown sport" {
		t.Errorf("forwarded error = %q", got)
	}
}

// TestHealthyConnectionSubscribesOnce answers each subscribe the way the
// backend does: snapshot, then status, then pongs for pings. None of those
// may trigger another subscribe or wipe the applied snapshot.
func TestHealthyConnectionSubscribesOnce(t *testing.T) {
	subscribes := make(chan struct{}, 100)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &env) != nil {
				continue
			}
			switch env.Type {
			case "subscribe":
				subscribes <- struct{}{}
				conn.WriteMessage(websocket.TextMessage, []byte(`{
					"type": "snapshot", "sport": "NHL", "game_id": "g1",
					"home_team": "Bruins", "away_team": "Rangers", "market": "Moneyline",
					"odds": {"draftkings": {"ml_home": {"odds": "-120", "outcome_name": "Moneyline", "outcome_target": "Bruins"}}}
				}`))
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"type":"status","upstream_connected":true,"games_tracked":1,"sportsbooks_active":1}`))
			case "ping":
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong","server_time":"t"}`))
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	cfg := testConfig(url)
	cfg.PingInterval = 20 * time.Millisecond
	a := New(cfg, slog.Default(), Options{})
	defer a.Stop(context.Background())

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	completeSelection(a)

	select {
	case <-subscribes:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial subscribe")
	}

	// Several status and pong round-trips fit in this window; none may
	// produce another subscribe.
	select {
	case <-subscribes:
		t.Fatal("status or pong retriggered a subscribe")
	case <-time.After(300 * time.Millisecond):
	}

	if rows := a.Rows(); len(rows) != 1 {
		t.Errorf("rows = %d, want 1 (snapshot wiped?)", len(rows))
	}
	if a.Loading() {
		t.Error("app stuck in loading on a healthy connection")
	}
}

// TestResubscribeAfterReconnect drives the app against a live mock server,
// drops the connection, and expects a fresh subscribe on the new one.
func TestResubscribeAfterReconnect(t *testing.T) {
	subscribes := make(chan string, 10)
	drop := make(chan struct{})
	var dropOnce atomic.Bool

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		first := !dropOnce.Load()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &env) == nil && env.Type == "subscribe" {
				subscribes <- string(data)
				if first {
					dropOnce.Store(true)
					close(drop)
					return // unclean close triggers the client's reconnect
				}
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	a := New(testConfig(url), slog.Default(), Options{})
	defer a.Stop(context.Background())

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	completeSelection(a)

	// First subscribe, then the server hangs up.
	select {
	case <-subscribes:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial subscribe")
	}
	<-drop

	// The reconnected transport must re-subscribe the same tuple.
	select {
	case payload := <-subscribes:
		if !strings.Contains(payload, `"g1"`) || !strings.Contains(payload, `"Moneyline"`) {
			t.Errorf("re-subscribe payload = %s", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no re-subscribe after reconnect")
	}
}
