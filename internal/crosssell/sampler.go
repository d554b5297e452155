// Package crosssell selects and diversifies recommended products for the
// current cart contents.
package crosssell

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"cart-sync-service/internal/models"
	"cart-sync-service/internal/util"

	"go.uber.org/zap"
)

const (
	// MaxCandidates caps the returned recommendation set.
	MaxCandidates = 6
	// maxCategories bounds the fan-out when the cart spans many categories.
	maxCategories = 4
	// perCategoryLimit applies in the multi-category path.
	perCategoryLimit = 3
)

// ProductLookup fetches catalog candidates for one category.
type ProductLookup interface {
	ProductsByCategory(ctx context.Context, category string, limit int) ([]models.CrossSellCandidate, error)
}

// Sampler produces up to MaxCandidates recommendations, excluding products
// already in the cart. Category fetches are cached for the session.
type Sampler struct {
	lookup ProductLookup
	logger *zap.Logger
	rng    *rand.Rand

	mu    sync.Mutex
	cache map[string][]models.CrossSellCandidate
}

// NewSampler creates a sampler backed by the given catalog lookup.
func NewSampler(lookup ProductLookup, seed int64) *Sampler {
	return &Sampler{
		lookup: lookup,
		logger: util.GetLogger(),
		rng:    rand.New(rand.NewSource(seed)),
		cache:  make(map[string][]models.CrossSellCandidate),
	}
}

// Sample returns recommendations for the given cart lines. A cart spanning
// one category keeps catalog order; a multi-category cart takes the top
// categories by item count, samples a few from each and shuffles for
// presentation diversity.
func (s *Sampler) Sample(ctx context.Context, items []models.LineItem) ([]models.CrossSellCandidate, error) {
	if len(items) == 0 {
		return nil, nil
	}

	inCart := make(map[string]struct{}, len(items))
	counts := make(map[string]int)
	for i := range items {
		inCart[items[i].ProductID] = struct{}{}
		if cat := items[i].Metadata["category"]; cat != "" {
			counts[cat] += items[i].Quantity
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}

	if len(counts) == 1 {
		var category string
		for cat := range counts {
			category = cat
		}
		candidates, err := s.fetch(ctx, category)
		if err != nil {
			return nil, err
		}
		return takeExcluding(candidates, inCart, MaxCandidates), nil
	}

	categories := make([]string, 0, len(counts))
	for cat := range counts {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		if counts[categories[i]] != counts[categories[j]] {
			return counts[categories[i]] > counts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > maxCategories {
		categories = categories[:maxCategories]
	}

	var wg sync.WaitGroup
	results := make([][]models.CrossSellCandidate, len(categories))
	for i, cat := range categories {
		wg.Add(1)
		go func(i int, cat string) {
			defer wg.Done()
			candidates, err := s.fetch(ctx, cat)
			if err != nil {
				s.logger.Warn("Cross-sell fetch failed",
					zap.String("category", cat),
					zap.Error(err))
				return
			}
			results[i] = takeExcluding(candidates, inCart, perCategoryLimit)
		}(i, cat)
	}
	wg.Wait()

	var pool []models.CrossSellCandidate
	for _, r := range results {
		pool = append(pool, r...)
	}
	s.shuffle(pool)
	if len(pool) > MaxCandidates {
		pool = pool[:MaxCandidates]
	}
	return pool, nil
}

// InvalidateCache drops the session cache, forcing fresh catalog fetches.
func (s *Sampler) InvalidateCache() {
	s.mu.Lock()
	s.cache = make(map[string][]models.CrossSellCandidate)
	s.mu.Unlock()
}

func (s *Sampler) fetch(ctx context.Context, category string) ([]models.CrossSellCandidate, error) {
	s.mu.Lock()
	cached, ok := s.cache[category]
	s.mu.Unlock()
	if ok {
		util.CrossSellFetchesTotal.WithLabelValues("cache").Inc()
		return cached, nil
	}

	// Over-fetch so exclusion of in-cart products still leaves a full set.
	candidates, err := s.lookup.ProductsByCategory(ctx, category, MaxCandidates*2)
	if err != nil {
		return nil, err
	}
	util.CrossSellFetchesTotal.WithLabelValues("catalog").Inc()

	s.mu.Lock()
	s.cache[category] = candidates
	s.mu.Unlock()
	return candidates, nil
}

// shuffle is a Fisher-Yates pass under the sampler's own rng.
func (s *Sampler) shuffle(pool []models.CrossSellCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(pool) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
}

func takeExcluding(candidates []models.CrossSellCandidate, exclude map[string]struct{}, limit int) []models.CrossSellCandidate {
	out := make([]models.CrossSellCandidate, 0, limit)
	for i := range candidates {
		if _, ok := exclude[candidates[i].ProductID]; ok {
			continue
		}
		out = append(out, candidates[i])
		if len(out) == limit {
			break
		}
	}
	return out
}
