package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func newTestService(p *fakePlatform) *PollService {
	return NewPollService(p, plainFormatter{}, testPollConfig, "movie-night", zerolog.Nop())
}

func TestPostDecoratesAndPins(t *testing.T) {
	p := newFakePlatform()
	s := newTestService(p)

	msgID, err := s.Post(context.Background(), Scheduled)
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	if diff := cmp.Diff([]string{"🇹", "🇼", "🇷", "🌞", "✅"}, p.reactions[msgID]); diff != "" {
		t.Errorf("reactions mismatch (-want +got):\n%s", diff)
	}
	if !p.pinned[msgID] {
		t.Error("expected poll to be pinned")
	}
	if active, ok := s.Active(); !ok || active != msgID {
		t.Fatalf("expected %s active, got %q", msgID, active)
	}
}

func TestPostRefusesSecondPoll(t *testing.T) {
	p := newFakePlatform()
	s := newTestService(p)

	if _, err := s.Post(context.Background(), Scheduled); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := s.Post(context.Background(), Scheduled); !errors.Is(err, ErrPollActive) {
		t.Fatalf("expected ErrPollActive, got %v", err)
	}
	if len(p.cards) != 1 {
		t.Fatalf("expected one poll message, got %d", len(p.cards))
	}
}

func TestConcurrentPostsKeepOnePoll(t *testing.T) {
	p := newFakePlatform()
	s := newTestService(p)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Post(context.Background(), Scheduled)
		}()
	}
	wg.Wait()

	if len(p.cards) != 1 {
		t.Fatalf("expected exactly one poll, got %d", len(p.cards))
	}
}

func TestPostPinPermissionIsNotFatal(t *testing.T) {
	p := newFakePlatform()
	p.pinErr = fmt.Errorf("%w: pin", ErrPermission)
	s := newTestService(p)

	if _, err := s.Post(context.Background(), Scheduled); err != nil {
		t.Fatalf("expected pin failure to be ignored, got %v", err)
	}
	if _, ok := s.Active(); !ok {
		t.Fatal("expected poll to be active")
	}
}

func TestPostSendFailureLeavesNoPoll(t *testing.T) {
	p := newFakePlatform()
	p.sendCardErr = errors.New("boom")
	s := newTestService(p)

	if _, err := s.Post(context.Background(), Scheduled); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := s.Active(); ok {
		t.Fatal("expected no active poll")
	}
}

func TestPostReactionFailureKeepsPoll(t *testing.T) {
	p := newFakePlatform()
	p.reactErr = errors.New("rate limited")
	s := newTestService(p)

	msgID, err := s.Post(context.Background(), Scheduled)
	if err == nil {
		t.Fatal("expected error")
	}
	if active, ok := s.Active(); !ok || active != msgID {
		t.Fatalf("expected posted message to stay active, got %q", active)
	}
}

func TestTallyAnnouncesAndClears(t *testing.T) {
	p := newFakePlatform()
	s := newTestService(p)

	msgID, err := s.Post(context.Background(), Scheduled)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	p.reactors["🇼"] = []User{botUser("psyduck"), user("ash"), user("misty")}
	p.reactors["🌞"] = []User{botUser("psyduck"), user("brock"), user("ash")}
	p.reactors["✅"] = []User{botUser("psyduck"), user("brock")}

	got, err := s.Tally(context.Background())
	if err != nil {
		t.Fatalf("tally: %v", err)
	}

	if got.MaxVotes != 2 || len(got.Winners) != 2 {
		t.Fatalf("expected a two-way tie at 2 votes, got %+v", got)
	}
	results := p.cards[len(p.cards)-1]
	want := []CardField{{Name: "Wednesday", Value: "2"}, {Name: "Sunday", Value: "2"}}
	if diff := cmp.Diff(want, results.Fields); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"hosts:1"}, p.texts); diff != "" {
		t.Errorf("texts mismatch (-want +got):\n%s", diff)
	}
	if p.pinned[msgID] {
		t.Error("expected poll to be unpinned")
	}
	if _, ok := s.Active(); ok {
		t.Fatal("expected poll to be cleared")
	}
}

func TestTallyWithoutPoll(t *testing.T) {
	s := newTestService(newFakePlatform())

	if _, err := s.Tally(context.Background()); !errors.Is(err, ErrNoActivePoll) {
		t.Fatalf("expected ErrNoActivePoll, got %v", err)
	}
}

func TestTallyFailureIsReportedAndClears(t *testing.T) {
	p := newFakePlatform()
	s := newTestService(p)

	if _, err := s.Post(context.Background(), Scheduled); err != nil {
		t.Fatalf("post: %v", err)
	}
	p.reactorsErr = errors.New("unknown message")

	if _, err := s.Tally(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(p.texts) != 1 || !strings.HasPrefix(p.texts[0], "failed: ") {
		t.Fatalf("expected failure report, got %v", p.texts)
	}
	if _, ok := s.Active(); ok {
		t.Fatal("expected poll to be cleared after a failed tally")
	}
	if _, err := s.Post(context.Background(), Scheduled); err != nil {
		t.Fatalf("expected a new poll after a failed tally, got %v", err)
	}
}

func TestTallyUnpinPermissionIsNotFatal(t *testing.T) {
	p := newFakePlatform()
	s := newTestService(p)

	if _, err := s.Post(context.Background(), Scheduled); err != nil {
		t.Fatalf("post: %v", err)
	}
	p.pinErr = fmt.Errorf("%w: unpin", ErrPermission)

	if _, err := s.Tally(context.Background()); err != nil {
		t.Fatalf("expected unpin failure to be ignored, got %v", err)
	}
}
