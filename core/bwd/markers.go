package bwd

// Marker names, current generation. Only these are written.
const (
	markerFormat   = "Format"
	markerSource   = "Source"
	markerCreated  = "Created"
	markerModified = "Modified"
	markerSettings = "Settings"
	markerAssets   = "Assets"

	markerSection = "Section"
	markerLabel   = "Label"
	markerTitle   = "Title"
	markerDesc    = "Desc"
	markerImage   = "Image"

	markerChange       = "Change"
	markerChangeStatus = "ChangeStatus"
	markerCleanedFor   = "CleanedFor"
	markerOriginal     = "Original"
	markerCleaned      = "Cleaned"
	markerEnd          = "End"
)

// Marker names, legacy generation. Accepted on read, normalized into the
// current model, never written.
const (
	legacyBlock    = "Block"
	legacyKeep     = "Keep"
	legacyWas      = "Was"
	legacyNow      = "Now"
	legacyEndBlock = "EndBlock"
)

// Per-category marker suffixes and prefixes are derived from the category
// name: "Language" yields detection marker "Language", status marker
// "LanguageStatus", legacy rating "LanguageRating", legacy flag
// "NeedsLanguage".
const (
	statusSuffix = "Status"
	ratingSuffix = "Rating"
	needsPrefix  = "Needs"
)
