package models

// PlatformProfile holds per-destination content constraints used by the
// optimizer and renderer. Configuration, not runtime state.
type PlatformProfile struct {
	Name           string   `json:"name"`
	MaxTitleLength int      `json:"max_title_length"` // grapheme clusters
	MaxHashtags    int      `json:"max_hashtags"`
	TitlePrefix    string   `json:"title_prefix"`
	DescSuffix     string   `json:"desc_suffix"`
	AspectRatio    string   `json:"aspect_ratio"` // e.g. 9:16
	Tags           []string `json:"tags"`         // platform-style hashtags, no leading #
}
