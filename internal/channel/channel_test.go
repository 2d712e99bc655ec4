package channel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	testingclock "k8s.io/utils/clock/testing"

	"surveyflow/internal/state"
	"surveyflow/internal/survey"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer starts an httptest server that upgrades every request and hands
// the connection to handler. Returns the ws:// URL.
func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// countingDialer wraps the default dialer and counts attempts.
type countingDialer struct {
	dials int32
}

func (d *countingDialer) Dial(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	atomic.AddInt32(&d.dials, 1)
	return websocket.DefaultDialer.Dial(urlStr, header)
}

func (d *countingDialer) count() int {
	return int(atomic.LoadInt32(&d.dials))
}

// failDialer always fails.
type failDialer struct {
	dials int32
}

func (d *failDialer) Dial(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	atomic.AddInt32(&d.dials, 1)
	return nil, nil, websocket.ErrBadHandshake
}

func sendFrame(t *testing.T, conn *websocket.Conn, f frame) {
	t.Helper()
	if err := conn.WriteJSON(f); err != nil {
		t.Errorf("write frame: %v", err)
	}
}

func closeNormally(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCompletedFlowFetchesArtifactOnce(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		sendFrame(t, conn, frame{Type: "progress", Step: "parsing", Percent: 10, Message: "parsing request"})
		sendFrame(t, conn, frame{Type: "progress", Step: "generating", Percent: 60, Message: "generating questionnaire"})
		sendFrame(t, conn, frame{Type: "completed", SurveyID: "sv-1"})
		// A reconnect can redeliver the terminal frame; the client must
		// dedupe the artifact fetch.
		sendFrame(t, conn, frame{Type: "completed", SurveyID: "sv-1"})
		time.Sleep(50 * time.Millisecond)
		closeNormally(conn)
	})

	st := state.NewStore()
	st.Reset("wf-1")
	dialer := &countingDialer{}
	var fetches int32

	ch, err := Open(Options{
		URL:    url,
		Store:  st,
		Dialer: dialer,
		Clock:  testingclock.NewFakeClock(time.Now()),
		OnCompleted: func(surveyID string) {
			if surveyID != "sv-1" {
				t.Errorf("OnCompleted surveyID = %q", surveyID)
			}
			atomic.AddInt32(&fetches, 1)
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	<-ch.Done()

	wf := st.Snapshot()
	if wf.Status != survey.StatusCompleted {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusCompleted)
	}
	if wf.SurveyID != "sv-1" {
		t.Errorf("SurveyID = %q, want sv-1", wf.SurveyID)
	}

	waitFor(t, "artifact fetch", func() bool { return atomic.LoadInt32(&fetches) == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Errorf("artifact fetched %d times, want exactly 1", got)
	}
	if dialer.count() != 1 {
		t.Errorf("dials = %d, want 1", dialer.count())
	}
}

func TestErrorFrameTerminatesWithoutRetry(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		sendFrame(t, conn, frame{Type: "error", Message: "model backend unavailable"})
		// Wait for the client's close.
		conn.ReadMessage()
	})

	st := state.NewStore()
	st.Reset("wf-1")
	dialer := &countingDialer{}

	ch, err := Open(Options{
		URL:    url,
		Store:  st,
		Dialer: dialer,
		Clock:  testingclock.NewFakeClock(time.Now()),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	<-ch.Done()

	wf := st.Snapshot()
	if wf.Status != survey.StatusFailed {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusFailed)
	}
	if wf.Error != "model backend unavailable" {
		t.Errorf("Error = %q", wf.Error)
	}
	if dialer.count() != 1 {
		t.Errorf("dials = %d, want 1 (terminal error must not reconnect)", dialer.count())
	}
}

func TestNormalCloseWhilePausedStops(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		sendFrame(t, conn, frame{Type: "paused", Message: "waiting for prompt review"})
		time.Sleep(20 * time.Millisecond)
		closeNormally(conn)
	})

	st := state.NewStore()
	st.Reset("wf-1")
	dialer := &countingDialer{}

	ch, err := Open(Options{
		URL:    url,
		Store:  st,
		Dialer: dialer,
		Clock:  testingclock.NewFakeClock(time.Now()),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	<-ch.Done()

	if got := st.Snapshot().Status; got != survey.StatusPaused {
		t.Errorf("Status = %s, want %s", got, survey.StatusPaused)
	}
	if dialer.count() != 1 {
		t.Errorf("dials = %d, want 1 (clean close does not reconnect)", dialer.count())
	}
}

func TestAbnormalCloseWhileInProgressReconnects(t *testing.T) {
	var connects int32
	url := newWSServer(t, func(conn *websocket.Conn) {
		n := atomic.AddInt32(&connects, 1)
		if n == 1 {
			sendFrame(t, conn, frame{Type: "progress", Step: "generating", Percent: 60, Message: "generating"})
			time.Sleep(20 * time.Millisecond)
			conn.Close() // abrupt, no close handshake
			return
		}
		sendFrame(t, conn, frame{Type: "completed", SurveyID: "sv-1"})
		time.Sleep(20 * time.Millisecond)
		closeNormally(conn)
	})

	st := state.NewStore()
	st.Reset("wf-1")
	dialer := &countingDialer{}
	fc := testingclock.NewFakeClock(time.Now())

	ch, err := Open(Options{
		URL:    url,
		Store:  st,
		Dialer: dialer,
		Clock:  fc,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	// Pump the clock until the run finishes; the reconnect timer is the only
	// waiter that matters, extra steps are harmless.
	done := ch.Done()
	for {
		select {
		case <-done:
		default:
			if fc.HasWaiters() {
				fc.Step(2 * time.Second)
			}
			time.Sleep(time.Millisecond)
			continue
		}
		break
	}

	wf := st.Snapshot()
	if wf.Status != survey.StatusCompleted {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusCompleted)
	}
	if dialer.count() != 2 {
		t.Errorf("dials = %d, want 2", dialer.count())
	}
}

func TestReconnectBudgetExhaustion(t *testing.T) {
	st := state.NewStore()
	st.Reset("wf-1")
	dialer := &failDialer{}
	fc := testingclock.NewFakeClock(time.Now())

	ch, err := Open(Options{
		URL:    "ws://127.0.0.1:1/ws/survey/wf-1",
		Store:  st,
		Dialer: dialer,
		Clock:  fc,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	done := ch.Done()
	for {
		select {
		case <-done:
		default:
			if fc.HasWaiters() {
				fc.Step(2 * time.Second)
			}
			time.Sleep(time.Millisecond)
			continue
		}
		break
	}

	wf := st.Snapshot()
	if wf.Status != survey.StatusFailed {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusFailed)
	}
	if wf.Error != "connection failed after multiple attempts" {
		t.Errorf("Error = %q", wf.Error)
	}
	// Initial attempt plus the full reconnect budget.
	if got := int(atomic.LoadInt32(&dialer.dials)); got != 6 {
		t.Errorf("dials = %d, want 6", got)
	}
}

func TestServerPingAnswered(t *testing.T) {
	gotPong := make(chan bool, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		sendFrame(t, conn, frame{Type: "ping"})
		var f frame
		if err := conn.ReadJSON(&f); err == nil {
			gotPong <- f.Type == "pong"
		} else {
			gotPong <- false
		}
		sendFrame(t, conn, frame{Type: "completed", SurveyID: "sv-1"})
		time.Sleep(20 * time.Millisecond)
		closeNormally(conn)
	})

	st := state.NewStore()
	st.Reset("wf-1")

	ch, err := Open(Options{
		URL:   url,
		Store: st,
		Clock: testingclock.NewFakeClock(time.Now()),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	if !<-gotPong {
		t.Error("server ping was not answered with a pong")
	}
	<-ch.Done()
}

func TestClientHeartbeat(t *testing.T) {
	gotPing := make(chan bool, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		var f frame
		if err := conn.ReadJSON(&f); err == nil {
			gotPing <- f.Type == "ping"
		} else {
			gotPing <- false
		}
		sendFrame(t, conn, frame{Type: "completed", SurveyID: "sv-1"})
		time.Sleep(20 * time.Millisecond)
		closeNormally(conn)
	})

	st := state.NewStore()
	st.Reset("wf-1")
	fc := testingclock.NewFakeClock(time.Now())

	ch, err := Open(Options{
		URL:   url,
		Store: st,
		Clock: fc,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()

	waitFor(t, "heartbeat ticker", fc.HasWaiters)
	fc.Step(30 * time.Second)

	if !<-gotPing {
		t.Error("client did not emit its heartbeat ping")
	}
	<-ch.Done()
}
