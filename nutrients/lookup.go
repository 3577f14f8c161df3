package nutrients

import "context"

// FlatFetcher is the data source behind a Service.
type FlatFetcher interface {
	Fetch(ctx context.Context, term string) *Flat
}

// Service combines fetching and grouping into the single call exposed to agents.
type Service struct {
	fetcher FlatFetcher
}

func NewService(fetcher FlatFetcher) *Service {
	return &Service{fetcher: fetcher}
}

// Lookup returns the grouped nutrients of the best match for term, or an empty result
// when nothing usable was found.
func (s *Service) Lookup(ctx context.Context, term string) *Grouped {
	return Group(s.LookupFlat(ctx, term))
}

// LookupFlat returns the ungrouped nutriments of the best match for term.
func (s *Service) LookupFlat(ctx context.Context, term string) *Flat {
	flat := s.fetcher.Fetch(ctx, term)
	if flat == nil {
		return NewFlat()
	}
	return flat
}
