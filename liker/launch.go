package liker

import (
	"context"
	"fmt"
	"io"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/feedpilot/liker/internal/browser"
)

// Launch starts or attaches Chrome, opens the feed tab and attaches it.
// When Chrome is recycled the tab is reopened and a new engine attached.
// The returned closer stops Chrome; call Close on the supervisor first.
func (s *Supervisor) Launch(ctx context.Context) (io.Closer, error) {
	bcfg := s.cfg.Browser
	bcfg.Logger = s.logger
	mgr := browser.NewManager(bcfg)

	if _, err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("liker: start browser: %w", err)
	}

	mgr.SetRecycleHooks(browser.RecycleHooks{
		BeforeRecycle: s.Detach,
		AfterRecycle: func(ctx context.Context, _ *rod.Browser) {
			if err := s.openFeed(ctx, mgr); err != nil {
				s.logger.Error("liker: reopen feed after recycle", "error", err)
			}
		},
	})

	if err := s.openFeed(ctx, mgr); err != nil {
		mgr.Close()
		return nil, err
	}
	return mgr, nil
}

func (s *Supervisor) openFeed(ctx context.Context, mgr *browser.Manager) error {
	tab, err := browser.OpenTab(ctx, mgr, s.cfg.Feed.URL)
	if err != nil {
		return fmt.Errorf("liker: open feed: %w", err)
	}
	if err := s.Attach(ctx, tab); err != nil {
		// The tab stays attached; the watchdog retries once it answers.
		s.logger.Warn("liker: attach feed", "url", s.cfg.Feed.URL, "error", err)
	}
	return nil
}
