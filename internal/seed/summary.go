package seed

import (
	"log/slog"
	"time"

	"geoseed/internal/domain"
)

// Summary aggregates per-asset outcomes for one class, in manifest order.
type Summary struct {
	Class    domain.AssetClass
	Outcomes []domain.LoadOutcome
}

func (s *Summary) record(name string, err error, d time.Duration) {
	status := domain.StatusLoaded
	if err != nil {
		status = domain.StatusFailed
	}
	s.Outcomes = append(s.Outcomes, domain.LoadOutcome{
		AssetName: name,
		Status:    status,
		Err:       err,
		Duration:  d,
	})
}

// skipRemaining marks never-attempted assets after an abort.
func (s *Summary) skipRemaining(assets []domain.Asset) {
	for i := range assets {
		s.Outcomes = append(s.Outcomes, domain.LoadOutcome{
			AssetName: assets[i].Name,
			Status:    domain.StatusSkipped,
		})
	}
}

// Counts returns the number of loaded, failed, and skipped assets.
func (s *Summary) Counts() (loaded, failed, skipped int) {
	for _, o := range s.Outcomes {
		switch o.Status {
		case domain.StatusLoaded:
			loaded++
		case domain.StatusFailed:
			failed++
		case domain.StatusSkipped:
			skipped++
		}
	}
	return loaded, failed, skipped
}

// Log writes one line per outcome plus a totals line.
func (s *Summary) Log(logger *slog.Logger) {
	for _, o := range s.Outcomes {
		attrs := []any{"class", s.Class, "asset", o.AssetName, "status", o.Status}
		if o.Status != domain.StatusSkipped {
			attrs = append(attrs, "duration_ms", o.Duration.Milliseconds())
		}
		if o.Err != nil {
			attrs = append(attrs, "error", o.Err)
			logger.Error("asset outcome", attrs...)
			continue
		}
		logger.Info("asset outcome", attrs...)
	}
	loaded, failed, skipped := s.Counts()
	logger.Info("load summary",
		"class", s.Class, "loaded", loaded, "failed", failed, "skipped", skipped)
}
