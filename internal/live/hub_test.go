package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestHubStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broker := NewMemory(8)
	hub := NewHub(broker, []string{"*"})

	r := gin.New()
	r.GET("/live", func(c *gin.Context) { hub.Serve(c, nil) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	received := make(chan Event, 1)
	go func() {
		var evt Event
		if err := conn.ReadJSON(&evt); err == nil {
			received <- evt
		}
	}()

	// The server subscribes right after the handshake; keep publishing until it is listening.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case evt := <-received:
			if evt.Type != TypeAttendanceRecorded {
				t.Fatalf("unexpected event %+v", evt)
			}
			return
		case <-ticker.C:
			_ = broker.Publish(ctx, Event{Type: TypeAttendanceRecorded, At: time.Now()})
		case <-ctx.Done():
			t.Fatalf("no event received over websocket")
		}
	}
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(NewMemory(1), []string{"https://dash.example"})

	r := gin.New()
	r.GET("/live", func(c *gin.Context) { hub.Serve(c, nil) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
	header := map[string][]string{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected handshake to fail for foreign origin")
	}
}

func TestHubFiltersEventsPerSubscriber(t *testing.T) {
	gin.SetMode(gin.TestMode)
	broker := NewMemory(64)
	hub := NewHub(broker, []string{"*"})

	subjects := map[string]string{"T1": "AI", "T2": "PCE"}
	r := gin.New()
	r.GET("/live/:teacher", func(c *gin.Context) {
		self := c.Param("teacher")
		hub.Serve(c, OwnedBy(func(teacherID, subject string) bool {
			return teacherID == self || subject == subjects[self]
		}))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	listen := func(teacher string) <-chan Event {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live/" + teacher
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", teacher, err)
		}
		t.Cleanup(func() { conn.Close() })
		out := make(chan Event, 64)
		go func() {
			for {
				var evt Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				out <- evt
			}
		}()
		return out
	}
	t1, t2 := listen("T1"), listen("T2")

	owned := func(teacher, subject string) Event {
		evt, err := NewEvent(TypeAttendanceRecorded, time.Now(), map[string]string{"teacherId": teacher, "subject": subject})
		if err != nil {
			t.Fatal(err)
		}
		return evt
	}
	owner := func(evt Event) string {
		var o struct {
			TeacherID string `json:"teacherId"`
		}
		_ = json.Unmarshal(evt.Data, &o)
		return o.TeacherID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var got1, got2 bool
	for !got1 || !got2 {
		select {
		case evt := <-t1:
			if owner(evt) != "T1" {
				t.Fatalf("T1 received %s", evt.Data)
			}
			got1 = true
		case evt := <-t2:
			if owner(evt) != "T2" {
				t.Fatalf("T2 received %s", evt.Data)
			}
			got2 = true
		case <-ticker.C:
			_ = broker.Publish(ctx, owned("T1", "AI"))
			_ = broker.Publish(ctx, owned("T2", "PCE"))
			_ = broker.Publish(ctx, Event{Type: TypeSessionCleared, At: time.Now()})
		case <-ctx.Done():
			t.Fatalf("events not delivered: T1=%v T2=%v", got1, got2)
		}
	}
}

func TestOwnedBy(t *testing.T) {
	t.Parallel()

	allow := OwnedBy(func(teacherID, subject string) bool { return teacherID == "T1" || subject == "AI" })
	cases := []struct {
		name string
		data string
		want bool
	}{
		{"own record", `{"teacherId":"T1","subject":"IoT"}`, true},
		{"taught subject", `{"teacherId":"T9","subject":"AI"}`, true},
		{"other teacher", `{"teacherId":"T2","subject":"PCE"}`, false},
		{"no payload", ``, false},
		{"bad payload", `[1,2]`, false},
	}
	for _, tc := range cases {
		if got := allow(Event{Type: TypeSessionSet, Data: json.RawMessage(tc.data)}); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
