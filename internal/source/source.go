// Package source extracts raw e-commerce records from files or HTTP APIs and
// converts them into typed records at the boundary.
package source

import (
	"context"
	"errors"
	"io"
	"sync"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/metrics"
)

// Source routes each record kind to the reader configured for it.
type Source struct {
	readers map[model.RecordKind]Reader
	log     *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// New builds a Source from configuration. Products come from the API when
// products_api_url is set and from products_path otherwise.
func New(cfg config.SourcesConfig, rc model.RetryConfig, log *logger.Logger, m *metrics.Manager) *Source {
	readers := map[model.RecordKind]Reader{}
	if cfg.TransactionsPath != "" {
		readers[model.KindTransactions] = FileReader{Path: cfg.TransactionsPath}
	}
	if cfg.UsersPath != "" {
		readers[model.KindUsers] = FileReader{Path: cfg.UsersPath}
	}
	switch {
	case cfg.ProductsAPIURL != "":
		readers[model.KindProducts] = NewAPIReader(cfg.ProductsAPIURL, cfg.APITimeout, rc, log, m)
	case cfg.ProductsPath != "":
		readers[model.KindProducts] = FileReader{Path: cfg.ProductsPath}
	}
	return NewWithReaders(readers, log)
}

// NewWithReaders builds a Source over explicit readers.
func NewWithReaders(readers map[model.RecordKind]Reader, log *logger.Logger) *Source {
	if log == nil {
		log = logger.NewNop()
	}
	return &Source{readers: readers, log: log}
}

// Extract reads every raw record of kind. A kind without a reader yields no
// records.
func (s *Source) Extract(ctx context.Context, kind model.RecordKind) ([]model.RawRecord, error) {
	r, ok := s.readers[kind]
	if !ok {
		s.log.Warn("no reader configured", "kind", kind)
		return nil, nil
	}
	records, err := r.Read(ctx, kind)
	if err != nil {
		return nil, err
	}
	s.log.Info("extracted raw records", "kind", kind, "count", len(records))
	return records, nil
}

// Close releases reader resources. Only the first call has an effect.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, r := range s.readers {
			if c, ok := r.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
