package slr

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegisterFirstURLWins(t *testing.T) {
	r := NewRegistry(testLogger())

	id1 := r.Register(42, "http://first.example/cb", nil)
	id2 := r.Register(42, "http://second.example/cb", nil)

	if id1 == id2 {
		t.Errorf("registration ids must differ, both %d", id1)
	}

	_, url, ok := r.Lookup(id2)
	if !ok {
		t.Fatal("second registration not found")
	}
	if url != "http://first.example/cb" {
		t.Errorf("url = %q, want first registration's URL", url)
	}
}

func TestCancelIdempotent(t *testing.T) {
	r := NewRegistry(testLogger())
	id := r.Register(7, "http://cb.example", nil)

	r.Cancel(7)
	r.Cancel(7) // second cancel is a no-op

	if _, _, ok := r.Lookup(id); ok {
		t.Error("registration still resolvable after cancel")
	}
	if _, ok := r.FindByReference(7); ok {
		t.Error("reference number still resolvable after cancel")
	}
	if r.Size() != 0 {
		t.Errorf("Size = %d, want 0", r.Size())
	}
}

func TestConcurrentRegisterDistinctIncreasingIDs(t *testing.T) {
	r := NewRegistry(testLogger())

	const n = 100
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Register(i, "http://cb.example", nil)
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := 1; i < n; i++ {
		if ids[i] == ids[i-1] {
			t.Fatalf("duplicate registration id %d", ids[i])
		}
	}
	if r.Size() != n {
		t.Errorf("Size = %d, want %d", r.Size(), n)
	}
}

func TestDeliverAfterCancelMakesNoCall(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	defer srv.Close()

	r := NewRegistry(testLogger())
	n := NewNotifier(r, time.Second, testLogger())

	id := r.Register(42, srv.URL, map[string]string{"msisdn": "59899077937"})
	r.Cancel(42)
	n.Deliver(http.MethodPost, id, nil)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("callback calls = %d, want 0 after cancel", calls)
	}
}

func TestDeliverCarriesParameters(t *testing.T) {
	type got struct {
		method string
		body   string
	}
	ch := make(chan got, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		ch <- got{method: req.Method, body: string(b)}
	}))
	defer srv.Close()

	r := NewRegistry(testLogger())
	n := NewNotifier(r, time.Second, testLogger())

	id := r.Register(9, srv.URL, map[string]string{"msisdn": "59899077937", "event": "available"})
	n.Deliver(http.MethodPost, id, map[string]string{"latitude": "-34.9011"})

	select {
	case g := <-ch:
		if g.method != http.MethodPost {
			t.Errorf("method = %q, want POST", g.method)
		}
		for _, want := range []string{"msisdn=59899077937", "event=available", "latitude=-34.9011"} {
			if !strings.Contains(g.body, want) {
				t.Errorf("body %q missing %q", g.body, want)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never delivered")
	}
}
