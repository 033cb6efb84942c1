package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type savedConversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestConversationsRoundTrip(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]json.RawMessage{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			data, ok := stored[r.URL.Query().Get("userId")]
			if !ok {
				data = json.RawMessage("[]")
			}
			_, _ = w.Write(data)
		case http.MethodPost:
			var req struct {
				UserID        string          `json:"userId"`
				Conversations json.RawMessage `json:"conversations"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			stored[req.UserID] = req.Conversations
			_, _ = w.Write([]byte(`{"message":"saved"}`))
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	ctx := context.Background()

	var before []savedConversation
	if err := c.LoadConversations(ctx, "u 1", &before); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(before) != 0 {
		t.Errorf("before = %v", before)
	}

	if err := c.SaveConversations(ctx, "u 1", []savedConversation{{ID: "c1", Title: "Hi"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var after []savedConversation
	if err := c.LoadConversations(ctx, "u 1", &after); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(after) != 1 || after[0].ID != "c1" {
		t.Errorf("after = %v", after)
	}
}

func TestSaveConversationsStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to save conversations"}`))
	}))
	defer ts.Close()

	err := NewClient(ts.URL).SaveConversations(context.Background(), "u1", []savedConversation{})
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("err = %T %v, want *StatusError", err, err)
	}
	if statusErr.Message != "failed to save conversations" {
		t.Errorf("message = %q", statusErr.Message)
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	saved := make(chan int, 10)
	d := NewDebouncer(20*time.Millisecond, func(v int) { saved <- v })

	for i := 1; i <= 5; i++ {
		d.Schedule(i)
	}

	select {
	case v := <-saved:
		if v != 5 {
			t.Errorf("saved %d, want latest value 5", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("save never ran")
	}

	select {
	case v := <-saved:
		t.Errorf("unexpected second save of %d", v)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	var mu sync.Mutex
	var saves []string
	d := NewDebouncer(time.Hour, func(v string) {
		mu.Lock()
		saves = append(saves, v)
		mu.Unlock()
	})

	d.Flush() // nothing pending
	d.Schedule("a")
	d.Schedule("b")
	d.Stop()
	d.Schedule("c")
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(saves) != 1 || saves[0] != "b" {
		t.Errorf("saves = %v, want [b]", saves)
	}
}
