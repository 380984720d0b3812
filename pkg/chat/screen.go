// Package chat implements the group chat screen as a view model.
//
// A Screen observes one group at a time through a resource.Resource and
// renders each snapshot into a View: a loading spinner, an error panel or
// the group header, never more than one of them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fundsavy/fundsavy/pkg/fetch"
	"github.com/fundsavy/fundsavy/pkg/groups"
	"github.com/fundsavy/fundsavy/pkg/middleware"
	"github.com/fundsavy/fundsavy/pkg/resource"
)

// View is the rendered header of the chat screen.
type View struct {
	GroupID  string `json:"groupId"`
	State    string `json:"state"`
	Loading  bool   `json:"loading,omitempty"`
	Error    string `json:"error,omitempty"`
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Banner   string `json:"banner,omitempty"`
}

// MemberLabel formats a member count, singular only for exactly one.
func MemberLabel(n int) string {
	if n == 1 {
		return "1 member"
	}
	return fmt.Sprintf("%d members", n)
}

// Render turns a snapshot into a View.
func Render(snap resource.Snapshot[string, groups.Group]) View {
	v := resource.Match(snap,
		resource.OnLoading[groups.Group](func() View {
			return View{Loading: true}
		}),
		resource.OnFailure[groups.Group](func(err error) View {
			return View{Error: snap.Message()}
		}),
		resource.OnSuccess(func(g groups.Group) View {
			return View{
				Title:    g.Name,
				Subtitle: MemberLabel(g.NumberOfMembers),
				Banner:   g.Body,
			}
		}),
	)
	v.GroupID = snap.Key
	v.State = snap.State.String()
	return v
}

// Screen is a live group chat screen.
type Screen struct {
	res *resource.Resource[string, groups.Group]
}

// Option configures a Screen.
type Option func(*screenConfig)

type screenConfig struct {
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// WithTimeout bounds each group retrieval.
func WithTimeout(d time.Duration) Option {
	return func(c *screenConfig) { c.timeout = d }
}

// WithRetry retries failed retrievals before showing the error panel.
func WithRetry(count int, delay time.Duration) Option {
	return func(c *screenConfig) {
		c.retries = count
		c.retryDelay = delay
	}
}

// WithLogger sets the screen logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *screenConfig) { c.logger = logger }
}

// NewScreen creates a screen reading groups from r. Nothing is retrieved
// until Open is called.
func NewScreen(r fetch.Retriever, opts ...Option) *Screen {
	cfg := screenConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	res := resource.New[string, groups.Group](fetch.Keyed[string, groups.Group](r, groups.Locator)).
		Timeout(cfg.timeout).
		RetryOnError(cfg.retries, cfg.retryDelay).
		WithLogger(cfg.logger).
		OnDiscard(func(id string) {
			middleware.RecordStaleDiscard()
		}).
		OnError(func(err error) {
			var fe *fetch.Error
			if errors.As(err, &fe) {
				cfg.logger.Debug("group retrieval failed", "detail", fe.Detail())
			}
		})

	return &Screen{res: res}
}

// Open shows the group with the given ID. Opening the group already shown
// does nothing; opening another one abandons the previous retrieval.
func (s *Screen) Open(groupID string) View {
	return Render(s.res.Observe(groupID))
}

// Reload retrieves the current group again.
func (s *Screen) Reload() View {
	return Render(s.res.Reload())
}

// View returns the current view.
func (s *Screen) View() View {
	return Render(s.res.Snapshot())
}

// Wait blocks until the current group is shown or has failed.
func (s *Screen) Wait(ctx context.Context) (View, error) {
	snap, err := s.res.Wait(ctx)
	if err != nil {
		return View{}, err
	}
	return Render(snap), nil
}

// Views streams rendered views, starting with the current one, until ctx is
// done or the screen is closed.
func (s *Screen) Views(ctx context.Context) <-chan View {
	snaps := s.res.Watch(ctx)
	out := make(chan View, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			select {
			case out <- Render(snap):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close tears the screen down. Results still in flight are discarded.
func (s *Screen) Close() {
	s.res.Close()
}
