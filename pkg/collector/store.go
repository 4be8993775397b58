package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formversation/voiceform/pkg/storage"
)

// StoreCollector persists submissions in the submission store.
type StoreCollector struct {
	store storage.SubmissionStore
}

// NewStoreCollector creates a collector backed by the submission store
func NewStoreCollector(store storage.SubmissionStore) *StoreCollector {
	return &StoreCollector{store: store}
}

// Submit persists the answers as a new submission
func (c *StoreCollector) Submit(ctx context.Context, formID string, answers map[string]string) (string, error) {
	sub := storage.Submission{
		ID:          uuid.New().String(),
		FormID:      formID,
		Answers:     answers,
		SubmittedAt: time.Now().Unix(),
	}

	if err := c.store.SaveSubmission(sub); err != nil {
		return "", fmt.Errorf("failed to store submission: %w", err)
	}
	return sub.ID, nil
}
