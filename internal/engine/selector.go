package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// SelectionError means no candidate engine passed the probe. It is
// fatal for the affected category: the usual cause is a wrong selector,
// which retries cannot fix.
type SelectionError struct {
	URL      string
	Selector string
	Attempts []string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("no engine matched selector %q on %s (tried %v); check the archive URL and selector", e.Selector, e.URL, e.Attempts)
}

// Selector probes candidate engines in preference order and locks in
// the first one that finds enough selector matches on a representative
// page. The chosen engine is cached per probe URL for the run.
type Selector struct {
	candidates []Engine
	minMatches int
	logger     *zap.Logger
	chosen     map[string]Engine
}

// NewSelector builds a Selector over candidates in probe order.
func NewSelector(candidates []Engine, minMatches int, logger *zap.Logger) *Selector {
	if minMatches <= 0 {
		minMatches = 1
	}
	return &Selector{
		candidates: candidates,
		minMatches: minMatches,
		logger:     logger,
		chosen:     make(map[string]Engine),
	}
}

// Forced returns the named engine, bypassing probing. Its failures are
// surfaced as-is and never downgraded to another engine.
func (s *Selector) Forced(name string) (Engine, error) {
	for _, eng := range s.candidates {
		if eng.Name() == name {
			s.logger.Info("using forced engine", zap.String("engine", name))
			return eng, nil
		}
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}

// Choose probes each candidate against probeURL: fetch it, count
// selector matches, accept on the first engine with at least the
// configured minimum. Results are cached so repeated category setups
// against the same URL do not refetch.
func (s *Selector) Choose(ctx context.Context, probeURL, selector string, req Request) (Engine, error) {
	if cached, ok := s.chosen[probeURL]; ok {
		return cached, nil
	}
	req.URL = probeURL

	attempted := make([]string, 0, len(s.candidates))
	for _, eng := range s.candidates {
		attempted = append(attempted, eng.Name())
		page, err := eng.Fetch(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("engine probe fetch failed",
				zap.String("engine", eng.Name()),
				zap.String("url", probeURL),
				zap.Error(err),
			)
			continue
		}
		count, err := CountMatches(page.Body, selector)
		if err != nil {
			s.logger.Warn("engine probe parse failed",
				zap.String("engine", eng.Name()),
				zap.Error(err),
			)
			continue
		}
		if count < s.minMatches {
			s.logger.Warn("engine probe found too few matches",
				zap.String("engine", eng.Name()),
				zap.String("selector", selector),
				zap.Int("matches", count),
				zap.Int("required", s.minMatches),
			)
			continue
		}
		s.logger.Info("engine selected",
			zap.String("engine", eng.Name()),
			zap.String("url", probeURL),
			zap.Int("matches", count),
		)
		s.chosen[probeURL] = eng
		return eng, nil
	}
	return nil, &SelectionError{URL: probeURL, Selector: selector, Attempts: attempted}
}

// CountMatches parses html and returns how many nodes match selector.
func CountMatches(html []byte, selector string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("parse probe page: %w", err)
	}
	return doc.Find(selector).Length(), nil
}
