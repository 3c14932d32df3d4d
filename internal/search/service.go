package search

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Service tries Meilisearch first and falls back to Postgres.
type Service struct {
	meili    *Meili
	postgres *Postgres
	logger   *logrus.Logger
}

// NewService creates a search service. meili may be nil when Meilisearch is not configured.
func NewService(meili *Meili, postgres *Postgres, logger *logrus.Logger) *Service {
	return &Service{meili: meili, postgres: postgres, logger: logger}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.logger.WithError(err).Warn("meilisearch search failed, falling back to postgres")
	}

	if s.postgres == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.postgres.Search(ctx, q)
	if err != nil {
		s.logger.WithError(err).Error("postgres search failed")
		return Response{Results: []Result{}, Query: q.Text, Backend: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}
}

// Healthy reports index health; a missing index counts as healthy because
// the fallback serves every query.
func (s *Service) Healthy() bool {
	return s.meili == nil || s.meili.Healthy()
}

// IndexContent pushes a record to Meilisearch without blocking the caller.
func (s *Service) IndexContent(rec ContentRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexContent(rec); err != nil {
			s.logger.WithError(err).WithField("content_id", rec.ID).Warn("index content")
		}
	}()
}

func (s *Service) DeleteContent(id string) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteContent(id); err != nil {
			s.logger.WithError(err).WithField("content_id", id).Warn("delete content from index")
		}
	}()
}

// ReindexAll copies every content row from Postgres into Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.meiliReady() || s.postgres == nil {
		return
	}
	records, err := s.postgres.LoadRecords(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("reindex load failed")
		return
	}
	if err := s.meili.IndexContents(records); err != nil {
		s.logger.WithError(err).Warn("reindex contents")
		return
	}
	s.logger.WithField("count", len(records)).Info("content index rebuilt")
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
