// search.go implements SearchService: a two-phase name scan over "latest" dist-tags
// (prefix first, substring only when the prefix scan comes back sparse) plus an
// independent exact-keyword channel.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/npm-registry/npm-registry/internal/db/models"
	"github.com/npm-registry/npm-registry/internal/db/repositories"
	"github.com/npm-registry/npm-registry/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSearchLimit caps each search channel when the caller gives no limit.
	DefaultSearchLimit = 100
	// DefaultSearchFallbackThreshold is the prefix hit count below which the
	// substring scan runs.
	DefaultSearchFallbackThreshold = 20
)

// NameSearcher matches LIKE patterns against the names of "latest" dist-tags.
type NameSearcher interface {
	SearchLatestModuleIDs(ctx context.Context, pattern string, limit int) ([]int64, error)
}

// KeywordFinder looks up exact keyword entries, newest first.
type KeywordFinder interface {
	FindByKeyword(ctx context.Context, keyword string, limit int) ([]models.ModuleKeyword, error)
}

// SummaryReader resolves module ids to name/description summaries ordered by name.
type SummaryReader interface {
	ListSummariesByIDs(ctx context.Context, ids []int64) ([]models.ModuleSummary, error)
}

// SearchConfig tunes SearchService. Zero values select the defaults.
type SearchConfig struct {
	DefaultLimit      int
	FallbackThreshold int
}

// SearchResult keeps keyword hits and name hits apart so callers can present them
// separately.
type SearchResult struct {
	KeywordMatches []models.ModuleKeyword `json:"keywordMatches"`
	SearchMatches  []models.ModuleSummary `json:"searchMatches"`
}

// SearchService searches packages by name and keyword
type SearchService struct {
	names     NameSearcher
	keywords  KeywordFinder
	summaries SummaryReader
	cfg       SearchConfig
}

// NewSearchService creates a new search service
func NewSearchService(names NameSearcher, keywords KeywordFinder, summaries SummaryReader, cfg SearchConfig) *SearchService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultSearchLimit
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = DefaultSearchFallbackThreshold
	}
	return &SearchService{names: names, keywords: keywords, summaries: summaries, cfg: cfg}
}

// Search runs the name and keyword channels concurrently. limit <= 0 uses the
// configured default.
func (s *SearchService) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	query = strings.TrimPrefix(query, "%")
	result := &SearchResult{
		KeywordMatches: []models.ModuleKeyword{},
		SearchMatches:  []models.ModuleSummary{},
	}
	if query == "" {
		return result, nil
	}

	var ids []int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ids, err = s.searchNames(gctx, query, limit)
		return err
	})
	g.Go(func() error {
		telemetry.SearchesTotal.WithLabelValues("keyword").Inc()
		matches, err := s.keywords.FindByKeyword(gctx, query, limit)
		if err != nil {
			return err
		}
		if matches != nil {
			result.KeywordMatches = matches
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	summaries, err := s.summaries.ListSummariesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if summaries != nil {
		result.SearchMatches = summaries
	}
	return result, nil
}

// searchNames returns the union of prefix and, when needed, substring hits.
func (s *SearchService) searchNames(ctx context.Context, query string, limit int) ([]int64, error) {
	literal := repositories.EscapeLike(query)

	telemetry.SearchesTotal.WithLabelValues("prefix").Inc()
	ids, err := s.names.SearchLatestModuleIDs(ctx, literal+"%", limit)
	if err != nil {
		return nil, err
	}
	if len(ids) >= s.cfg.FallbackThreshold {
		return ids, nil
	}

	telemetry.SearchesTotal.WithLabelValues("substring").Inc()
	more, err := s.names.SearchLatestModuleIDs(ctx, "%"+literal+"%", limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(ids)+len(more))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, id := range more {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
