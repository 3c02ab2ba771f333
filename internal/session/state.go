package session

import "storybook-server/internal/models"

// State is one of Form, GeneratingText, Preview, GeneratingImages, Viewing,
// EditingImage or Failed. States that need a draft or a book carry it, so a
// Preview without a draft or a Viewing without a book cannot be built.
type State interface {
	Phase() models.Phase
	sealed()
}

// Form waits for a story form. Notice carries a message for the user, such
// as a share link that could not be loaded.
type Form struct {
	Notice string
}

// GeneratingText waits for the story text.
type GeneratingText struct {
	Form models.StoryFormData
}

// Preview shows the text-only draft.
type Preview struct {
	Draft models.TextOnlyStorybook
}

// GeneratingImages holds the freshly built placeholder book. The session
// moves on to Viewing right away.
type GeneratingImages struct {
	Book models.Storybook
}

// Viewing shows the book while images keep arriving.
type Viewing struct {
	Book models.Storybook
}

// EditingImage has the edit dialog open on Target.
type EditingImage struct {
	Book   models.Storybook
	Target models.ImageEditTarget
}

// Failed is absorbing; only Restart leaves it.
type Failed struct {
	Message string
}

func (Form) Phase() models.Phase             { return models.PhaseForm }
func (GeneratingText) Phase() models.Phase   { return models.PhaseGeneratingText }
func (Preview) Phase() models.Phase          { return models.PhasePreview }
func (GeneratingImages) Phase() models.Phase { return models.PhaseGeneratingImages }
func (Viewing) Phase() models.Phase          { return models.PhaseViewing }
func (EditingImage) Phase() models.Phase     { return models.PhaseEditingImage }
func (Failed) Phase() models.Phase           { return models.PhaseError }

func (Form) sealed()             {}
func (GeneratingText) sealed()   {}
func (Preview) sealed()          {}
func (GeneratingImages) sealed() {}
func (Viewing) sealed()          {}
func (EditingImage) sealed()     {}
func (Failed) sealed()           {}

// bookOf returns the book held by st, if any.
func bookOf(st State) (models.Storybook, bool) {
	switch st := st.(type) {
	case GeneratingImages:
		return st.Book, true
	case Viewing:
		return st.Book, true
	case EditingImage:
		return st.Book, true
	default:
		return models.Storybook{}, false
	}
}

// withBook returns st with its book replaced. States without a book are
// returned unchanged.
func withBook(st State, book models.Storybook) State {
	switch st := st.(type) {
	case GeneratingImages:
		st.Book = book
		return st
	case Viewing:
		st.Book = book
		return st
	case EditingImage:
		st.Book = book
		return st
	default:
		return st
	}
}

// Snapshot is a serializable view of a session.
type Snapshot struct {
	ID        string                    `json:"id"`
	Phase     models.Phase              `json:"phase"`
	Location  string                    `json:"location,omitempty"`
	Notice    string                    `json:"notice,omitempty"`
	Draft     *models.TextOnlyStorybook `json:"draft,omitempty"`
	Book      *models.Storybook         `json:"book,omitempty"`
	Target    *models.ImageEditTarget   `json:"target,omitempty"`
	Message   string                    `json:"message,omitempty"`
	Narrating string                    `json:"narrating,omitempty"`
}

func snapshotOf(id string, st State) Snapshot {
	snap := Snapshot{ID: id, Phase: st.Phase()}
	switch st := st.(type) {
	case Form:
		snap.Notice = st.Notice
	case Preview:
		draft := st.Draft
		snap.Draft = &draft
	case GeneratingImages:
		snap.Book = &st.Book
	case Viewing:
		snap.Book = &st.Book
	case EditingImage:
		snap.Book = &st.Book
		target := st.Target
		snap.Target = &target
	case Failed:
		snap.Message = st.Message
	}
	return snap
}
