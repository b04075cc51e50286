package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type fakeDirectory struct {
	mu      sync.Mutex
	topics  []string
	listErr error
	lists   int
}

func (f *fakeDirectory) ListTopics(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.topics...), nil
}

func (f *fakeDirectory) CreateTopic(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.topics {
		if t == name {
			return errors.New("exists")
		}
	}
	f.topics = append(f.topics, name)
	return nil
}

func (f *fakeDirectory) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func TestRefreshOpensDiscoveredTopics(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, Options{})
	ctx := startManager(t, m)

	dir := &fakeDirectory{topics: []string{"csci104", "", "csci201", "csci104"}}
	s := NewSyncer(dir, m, nil, 0, nil)

	ids, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(ids) != 2 || ids[0] != "csci104" || ids[1] != "csci201" {
		t.Fatalf("unexpected ids %v", ids)
	}
	mustEventually(t, "both connected", func() bool {
		return statusOf(t, ctx, m, "csci104") == StatusConnected &&
			statusOf(t, ctx, m, "csci201") == StatusConnected
	})

	// a second refresh with a shorter list keeps the dropped topic alive
	dir.mu.Lock()
	dir.topics = []string{"csci201"}
	dir.mu.Unlock()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if st := statusOf(t, ctx, m, "csci104"); st != StatusConnected {
		t.Fatalf("removed topic was torn down: %s", st)
	}
	if d.count("csci104") != 1 || d.count("csci201") != 1 {
		t.Fatalf("refresh redialed known topics")
	}
}

func TestRefreshReportsDirectoryErrors(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), Options{})
	ctx := startManager(t, m)

	boom := errors.New("boom")
	s := NewSyncer(&fakeDirectory{listErr: boom}, m, nil, 0, nil)
	if _, err := s.Refresh(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped directory error, got %v", err)
	}
	if v := mustView(t, ctx, m); len(v.Topics) != 0 {
		t.Fatalf("failed refresh created topics: %+v", v.Topics)
	}
}

func TestCreateTopicRefreshes(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, Options{})
	ctx := startManager(t, m)

	dir := &fakeDirectory{topics: []string{"general"}}
	s := NewSyncer(dir, m, nil, 0, nil)

	if _, err := s.CreateTopic(ctx, "   "); !errors.Is(err, ErrInvalidTopic) {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}

	ids, err := s.CreateTopic(ctx, "  random ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(ids) != 2 || ids[1] != "random" {
		t.Fatalf("unexpected ids %v", ids)
	}
	mustEventually(t, "new topic dialed", func() bool { return d.count("random") == 1 })

	if _, err := s.CreateTopic(ctx, "random"); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
}

func TestSyncerRunsOnEveryTick(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), Options{})
	ctx := startManager(t, m)

	mock := clock.NewMock()
	dir := &fakeDirectory{topics: []string{"general"}}
	s := NewSyncer(dir, m, mock, 10*time.Second, nil)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		s.Run(runCtx)
		close(done)
	}()

	// the ticker must be registered before time moves
	time.Sleep(20 * time.Millisecond)
	mock.Add(10 * time.Second)
	mustEventually(t, "first tick", func() bool { return dir.listCount() == 1 })
	mock.Add(10 * time.Second)
	mustEventually(t, "second tick", func() bool { return dir.listCount() == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("syncer did not stop")
	}
}

func TestSyncerWithoutIntervalWaits(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), Options{})
	dir := &fakeDirectory{}
	s := NewSyncer(dir, m, nil, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	if dir.listCount() != 0 {
		t.Fatalf("disabled syncer listed topics")
	}
}
