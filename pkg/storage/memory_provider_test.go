package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFormStore(t *testing.T) {
	store := NewMemoryFormStore()

	form := Form{
		ID:     "contact-1",
		Name:   "Contact",
		Slug:   "contact",
		YAML:   "flow: {}",
		Active: true,
	}
	require.NoError(t, store.SaveForm(form))

	got, err := store.GetForm("contact-1")
	require.NoError(t, err)
	assert.Equal(t, "Contact", got.Name)
	assert.NotZero(t, got.CreatedAt)
	assert.NotZero(t, got.UpdatedAt)

	// Lookup by slug
	bySlug, err := store.GetFormBySlug("contact")
	require.NoError(t, err)
	assert.Equal(t, "contact-1", bySlug.ID)

	_, err = store.GetFormBySlug("")
	assert.ErrorIs(t, err, ErrFormNotFound)

	// Updates preserve the creation timestamp
	created := got.CreatedAt
	got.Name = "Contact v2"
	require.NoError(t, store.SaveForm(got))
	updated, err := store.GetForm("contact-1")
	require.NoError(t, err)
	assert.Equal(t, "Contact v2", updated.Name)
	assert.Equal(t, created, updated.CreatedAt)

	forms, err := store.ListForms()
	require.NoError(t, err)
	assert.Len(t, forms, 1)

	require.NoError(t, store.DeleteForm("contact-1"))
	_, err = store.GetForm("contact-1")
	assert.ErrorIs(t, err, ErrFormNotFound)
	assert.ErrorIs(t, store.DeleteForm("contact-1"), ErrFormNotFound)
}

func TestMemorySubmissionStore(t *testing.T) {
	store := NewMemorySubmissionStore()

	_, err := store.GetSubmission("missing")
	assert.ErrorIs(t, err, ErrSubmissionNotFound)

	first := Submission{ID: "s1", FormID: "f1", Answers: map[string]string{"name": "Jane"}}
	second := Submission{ID: "s2", FormID: "f1", Answers: map[string]string{"name": "Bob"}}
	other := Submission{ID: "s3", FormID: "f2", Answers: map[string]string{"name": "Ann"}}

	require.NoError(t, store.SaveSubmission(first))
	require.NoError(t, store.SaveSubmission(second))
	require.NoError(t, store.SaveSubmission(other))

	got, err := store.GetSubmission("s1")
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.Answers["name"])
	assert.NotZero(t, got.SubmittedAt)

	// Arrival order per form
	subs, err := store.ListSubmissions("f1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "s1", subs[0].ID)
	assert.Equal(t, "s2", subs[1].ID)

	subs, err = store.ListSubmissions("empty")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()

	rec := SessionRecord{
		ID:      "sess-1",
		FormID:  "f1",
		StepID:  "email",
		Answers: map[string]string{"name": "Jane"},
		State:   "running",
	}
	require.NoError(t, store.SaveSession(rec))

	got, err := store.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "email", got.StepID)
	assert.NotZero(t, got.UpdatedAt)

	require.NoError(t, store.DeleteSession("sess-1"))
	_, err = store.GetSession("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.DeleteSession("sess-1"), ErrSessionNotFound)
}

func TestMemorySessionStoreDeleteExpired(t *testing.T) {
	store := NewMemorySessionStore()

	require.NoError(t, store.SaveSession(SessionRecord{ID: "fresh", FormID: "f1"}))

	// Plant a stale snapshot directly; SaveSession always stamps now.
	store.mu.Lock()
	store.sessions["stale"] = SessionRecord{
		ID:        "stale",
		FormID:    "f1",
		UpdatedAt: time.Now().Add(-2 * time.Hour).Unix(),
	}
	store.mu.Unlock()

	removed, err := store.DeleteExpired(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetSession("stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.GetSession("fresh")
	assert.NoError(t, err)
}

func TestMemoryProviderWiring(t *testing.T) {
	provider := NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	defer provider.Close()

	assert.NotNil(t, provider.FormStore())
	assert.NotNil(t, provider.SubmissionStore())
	assert.NotNil(t, provider.SessionStore())
}
