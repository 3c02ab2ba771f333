package models

// PatchOp is the kind of slot transition a patch performs.
type PatchOp string

const (
	// PatchLoading marks a slot as having a request in flight. The image is kept.
	PatchLoading PatchOp = "loading"
	// PatchSuccess stores a new image and clears the loading flag.
	PatchSuccess PatchOp = "success"
	// PatchFailure clears both the image and the loading flag.
	PatchFailure PatchOp = "failure"
	// PatchRestore puts back a slot exactly as it was in a snapshot.
	PatchRestore PatchOp = "restore"
)

// ImagePatch is an index-addressed, whole-slot update.
type ImagePatch struct {
	Slot     SlotRef `json:"slot"`
	Op       PatchOp `json:"op"`
	ImageURL string  `json:"imageUrl,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	// Generating is the loading flag to restore; only read by PatchRestore.
	Generating bool `json:"generating,omitempty"`
}

// LoadingPatch marks ref as loading.
func LoadingPatch(ref SlotRef) ImagePatch {
	return ImagePatch{Slot: ref, Op: PatchLoading}
}

// SuccessPatch stores imageURL in ref.
func SuccessPatch(ref SlotRef, imageURL, mimeType string) ImagePatch {
	return ImagePatch{Slot: ref, Op: PatchSuccess, ImageURL: imageURL, MimeType: mimeType}
}

// FailurePatch marks ref as permanently failed (empty image, not loading).
func FailurePatch(ref SlotRef) ImagePatch {
	return ImagePatch{Slot: ref, Op: PatchFailure}
}

// RestorePatch rolls ref back to img.
func RestorePatch(ref SlotRef, img SlotImage) ImagePatch {
	return ImagePatch{Slot: ref, Op: PatchRestore, ImageURL: img.ImageURL, MimeType: img.MimeType, Generating: img.IsGeneratingImage}
}

func (p ImagePatch) applyCover(c Cover) Cover {
	switch p.Op {
	case PatchLoading:
		c.IsGeneratingImage = true
	case PatchSuccess:
		c.ImageURL = p.ImageURL
		c.MimeType = p.MimeType
		c.IsGeneratingImage = false
	case PatchFailure:
		c.ImageURL = ""
		c.IsGeneratingImage = false
	case PatchRestore:
		c.ImageURL = p.ImageURL
		c.MimeType = p.MimeType
		c.IsGeneratingImage = p.Generating
	}
	return c
}

func (p ImagePatch) applyPage(pg Page) Page {
	switch p.Op {
	case PatchLoading:
		pg.IsGeneratingImage = true
	case PatchSuccess:
		pg.ImageURL = p.ImageURL
		pg.MimeType = p.MimeType
		pg.IsGeneratingImage = false
	case PatchFailure:
		pg.ImageURL = ""
		pg.IsGeneratingImage = false
	case PatchRestore:
		pg.ImageURL = p.ImageURL
		pg.MimeType = p.MimeType
		pg.IsGeneratingImage = p.Generating
	}
	return pg
}
