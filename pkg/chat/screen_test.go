package chat

import (
	"context"
	"testing"
	"time"

	"github.com/fundsavy/fundsavy/pkg/fetch"
	"github.com/fundsavy/fundsavy/pkg/groups"
)

func testStore() *groups.Store {
	return groups.NewStore(
		groups.Group{ID: "1", Name: "Savings Circle", NumberOfMembers: 4, Body: "Monthly contributions"},
		groups.Group{ID: "2", Name: "Solo", NumberOfMembers: 1, Body: "Just me"},
		groups.Group{ID: "3", Name: "Empty", NumberOfMembers: 0},
	)
}

func waitView(t *testing.T, s *Screen) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	return v
}

func TestMemberLabel(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0 members"},
		{1, "1 member"},
		{2, "2 members"},
		{12, "12 members"},
	}
	for _, tt := range tests {
		if got := MemberLabel(tt.n); got != tt.want {
			t.Errorf("MemberLabel(%d): expected %q, got %q", tt.n, tt.want, got)
		}
	}
}

func TestScreenShowsGroup(t *testing.T) {
	s := NewScreen(testStore())
	defer s.Close()

	if v := s.View(); v.State != "idle" || v.Loading {
		t.Errorf("Expected idle view before Open, got %+v", v)
	}

	v := s.Open("1")
	if !v.Loading || v.Title != "" || v.Error != "" {
		t.Errorf("Expected spinner only, got %+v", v)
	}

	v = waitView(t, s)
	want := View{
		GroupID:  "1",
		State:    "success",
		Title:    "Savings Circle",
		Subtitle: "4 members",
		Banner:   "Monthly contributions",
	}
	if v != want {
		t.Errorf("Expected %+v, got %+v", want, v)
	}

	s.Open("2")
	if v := waitView(t, s); v.Subtitle != "1 member" {
		t.Errorf("Expected singular label, got %q", v.Subtitle)
	}
}

func TestScreenShowsErrorPanel(t *testing.T) {
	s := NewScreen(testStore())
	defer s.Close()

	s.Open("missing")
	v := waitView(t, s)
	if v.Error != "not found" || v.Loading || v.Title != "" {
		t.Errorf("Expected error panel only, got %+v", v)
	}
}

func TestScreenTimeout(t *testing.T) {
	slow := fetch.RetrieverFunc(func(ctx context.Context, locator string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := NewScreen(slow, WithTimeout(20*time.Millisecond))
	defer s.Close()

	s.Open("1")
	if v := waitView(t, s); v.Error != "request timed out" {
		t.Errorf("Expected timeout message, got %+v", v)
	}
}

func TestScreenDiscardsStaleGroup(t *testing.T) {
	store := testStore()
	release := make(chan struct{})
	gated := fetch.RetrieverFunc(func(ctx context.Context, locator string) ([]byte, error) {
		if locator == groups.Locator("1") {
			<-release
		}
		return store.Retrieve(context.Background(), locator)
	})

	s := NewScreen(gated)
	defer s.Close()

	s.Open("1")
	s.Open("2")
	if v := waitView(t, s); v.Title != "Solo" {
		t.Fatalf("Expected Solo, got %+v", v)
	}

	close(release)
	time.Sleep(20 * time.Millisecond)
	if v := s.View(); v.GroupID != "2" || v.Title != "Solo" {
		t.Errorf("Stale group overwrote the view: %+v", v)
	}
}

func TestScreenViewsStream(t *testing.T) {
	s := NewScreen(testStore())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	views := s.Views(ctx)

	s.Open("3")

	var states []string
	timeout := time.After(time.Second)
	for len(states) == 0 || states[len(states)-1] != "success" {
		select {
		case v, ok := <-views:
			if !ok {
				t.Fatal("Views closed early")
			}
			states = append(states, v.State)
			if v.State == "success" && v.Subtitle != "0 members" {
				t.Errorf("Unexpected subtitle %q", v.Subtitle)
			}
		case <-timeout:
			t.Fatalf("Timed out, saw %v", states)
		}
	}
	if states[0] != "idle" {
		t.Errorf("Expected stream to start idle, got %v", states)
	}

	s.Close()
	select {
	case _, ok := <-views:
		for ok {
			_, ok = <-views
		}
	case <-time.After(time.Second):
		t.Error("Expected Views to close after Close")
	}
}

func TestScreenReload(t *testing.T) {
	store := testStore()
	s := NewScreen(store)
	defer s.Close()

	s.Open("1")
	waitView(t, s)

	store.Put(groups.Group{ID: "1", Name: "Renamed", NumberOfMembers: 5})
	if v := s.Open("1"); v.Title != "Savings Circle" {
		t.Errorf("Expected same key not to refetch, got %+v", v)
	}

	s.Reload()
	if v := waitView(t, s); v.Title != "Renamed" {
		t.Errorf("Expected reloaded group, got %+v", v)
	}
}
