package statistics

import (
	"context"
	"errors"
	"log/slog"

	"github.com/deidaraiorek/sitesearch/internal/config"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

type Total struct {
	Sites    int  `json:"sites"`
	Pages    int  `json:"pages"`
	Lemmas   int  `json:"lemmas"`
	Indexing bool `json:"indexing"`
}

type Detailed struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StatusTime int64  `json:"statusTime"`
	Error      string `json:"error"`
	Pages      int    `json:"pages"`
	Lemmas     int    `json:"lemmas"`
}

type Report struct {
	Total    Total      `json:"total"`
	Detailed []Detailed `json:"detailed"`
}

// RunState reports whether a full indexing run is in progress.
type RunState interface {
	IsRunning() bool
}

type Service struct {
	sites  []config.Site
	db     *storage.Database
	state  RunState
	logger *slog.Logger
}

func NewService(sites []config.Site, db *storage.Database, state RunState, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sites: sites, db: db, state: state, logger: logger}
}

// Statistics counts pages and lemmas of every configured site that has been
// indexed at least once. Counting failures are logged and reported as zero.
func (s *Service) Statistics(ctx context.Context) (*Report, error) {
	report := &Report{
		Total: Total{
			Sites:    len(s.sites),
			Indexing: s.state != nil && s.state.IsRunning(),
		},
		Detailed: []Detailed{},
	}

	for _, cfgSite := range s.sites {
		site, err := s.db.GetSiteByURL(ctx, cfgSite.URL)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		pages, err := s.db.CountPages(ctx, site.ID)
		if err != nil {
			s.logger.Warn("failed to count pages", "site", site.URL, "err", err)
			pages = 0
		}
		lemmas, err := s.db.CountLemmas(ctx, site.ID)
		if err != nil {
			s.logger.Warn("failed to count lemmas", "site", site.URL, "err", err)
			lemmas = 0
		}

		report.Detailed = append(report.Detailed, Detailed{
			URL:        cfgSite.URL,
			Name:       cfgSite.Name,
			Status:     string(site.Status),
			StatusTime: site.StatusTime.UnixMilli(),
			Error:      site.LastError,
			Pages:      pages,
			Lemmas:     lemmas,
		})
		report.Total.Pages += pages
		report.Total.Lemmas += lemmas
	}

	return report, nil
}
