package collector

import (
	"context"
	"errors"

	"github.com/formversation/voiceform/pkg/logging"
)

// MultiCollector fans a submission out to several collectors. The first
// successful submission id is returned; individual failures are logged
// and do not stop the remaining deliveries.
type MultiCollector struct {
	collectors []Collector
	log        logging.Logger
}

// NewMultiCollector creates a fan-out collector
func NewMultiCollector(log logging.Logger, collectors ...Collector) *MultiCollector {
	return &MultiCollector{
		collectors: collectors,
		log:        log,
	}
}

// Submit delivers the answers to every configured collector
func (c *MultiCollector) Submit(ctx context.Context, formID string, answers map[string]string) (string, error) {
	var firstID string
	var errs []error

	for _, coll := range c.collectors {
		id, err := coll.Submit(ctx, formID, answers)
		if err != nil {
			c.log.Warn("collector delivery failed",
				logging.F("form_id", formID),
				logging.F("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		if firstID == "" {
			firstID = id
		}
	}

	if firstID == "" && len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return firstID, nil
}
