package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formversation/voiceform/pkg/flow"
	"github.com/formversation/voiceform/pkg/storage"
)

const minimalYAML = `
flow:
  id: contact
  name: Contact
  start: hello
  steps:
    hello:
      type: message
      speak: "Hello!"
      next: done
    done:
      type: completion
      speak: "Bye."
`

func newTestRegistry() (FormRegistry, storage.FormStore) {
	store := storage.NewMemoryFormStore()
	return NewFormRegistry(store, flow.NewLoader()), store
}

func TestCreateAndGetForm(t *testing.T) {
	reg, _ := newTestRegistry()

	id, err := reg.Create("Contact Form", "contact", minimalYAML, "https://hooks.example.com/x")
	require.NoError(t, err)
	assert.Contains(t, id, "contact-form-")

	form, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Contact Form", form.Name)
	assert.Equal(t, "contact", form.Slug)
	assert.True(t, form.Active)

	// Public URLs resolve by slug too.
	bySlug, err := reg.Get("contact")
	require.NoError(t, err)
	assert.Equal(t, id, bySlug.ID)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrFormNotFound)
}

func TestCreateRejectsInvalidYAML(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.Create("Broken", "", "flow: {steps: {}}", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestDocumentRequiresActiveForm(t *testing.T) {
	reg, store := newTestRegistry()

	id, err := reg.Create("Contact", "", minimalYAML, "")
	require.NoError(t, err)

	doc, err := reg.Document(id)
	require.NoError(t, err)
	assert.Equal(t, "contact", doc.ID())
	assert.Equal(t, "hello", doc.StartStepID())

	form, err := store.GetForm(id)
	require.NoError(t, err)
	form.Active = false
	require.NoError(t, store.SaveForm(form))

	_, err = reg.Document(id)
	assert.ErrorIs(t, err, ErrFormInactive)
}

func TestUpdateForm(t *testing.T) {
	reg, _ := newTestRegistry()

	id, err := reg.Create("Contact", "", minimalYAML, "")
	require.NoError(t, err)

	err = reg.Update(id, "Contact v2", "contact-v2", minimalYAML, "https://hooks.example.com/y")
	require.NoError(t, err)

	form, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Contact v2", form.Name)
	assert.Equal(t, "https://hooks.example.com/y", form.WebhookURL)

	assert.ErrorIs(t, reg.Update("missing", "x", "", minimalYAML, ""), ErrFormNotFound)

	err = reg.Update(id, "Contact v3", "", "not: [valid", "")
	assert.Error(t, err)
}

func TestDeleteForm(t *testing.T) {
	reg, _ := newTestRegistry()

	id, err := reg.Create("Contact", "", minimalYAML, "")
	require.NoError(t, err)

	require.NoError(t, reg.Delete(id))
	_, err = reg.Get(id)
	assert.ErrorIs(t, err, ErrFormNotFound)
	assert.ErrorIs(t, reg.Delete(id), ErrFormNotFound)
}

func TestListForms(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.Create("First", "", minimalYAML, "")
	require.NoError(t, err)
	_, err = reg.Create("Second", "", minimalYAML, "")
	require.NoError(t, err)

	infos, err := reg.List()
	require.NoError(t, err)
	assert.Len(t, infos, 2)
	for _, info := range infos {
		assert.NotEmpty(t, info.ID)
		assert.True(t, info.Active)
		assert.False(t, info.CreatedAt.IsZero())
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "contact-form", slugify("Contact Form"))
	assert.Equal(t, "my-form-2", slugify("  My  Form 2!  "))
	assert.Equal(t, "form", slugify("???"))
}
