// Package optimizer produces platform-compliant content variants. All
// functions are pure and deterministic so output is reproducible.
package optimizer

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/hypecast/backend/internal/models"
)

// Content is a title/description/hashtag set, either the base input or a
// platform-optimized variant.
type Content struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

// Optimize transforms base content into the platform's variant. keywords are
// the moment's trigger keywords; when present at least one keyword tag is
// kept in the output (context preservation).
func Optimize(base Content, profile models.PlatformProfile, keywords []string) Content {
	title := base.Title
	if profile.TitlePrefix != "" {
		title = profile.TitlePrefix + " " + title
	}
	title = TruncateGraphemes(title, profile.MaxTitleLength)

	description := base.Description + profile.DescSuffix

	return Content{
		Title:       title,
		Description: description,
		Hashtags:    hashtags(base.Hashtags, profile, keywords),
	}
}

// hashtags builds platform-style tags followed by derived keyword tags,
// capped at the profile limit with at least one keyword tag when available.
func hashtags(base []string, profile models.PlatformProfile, keywords []string) []string {
	seen := make(map[string]bool)
	add := func(dst []string, tags []string, limit int) []string {
		for _, t := range tags {
			if len(dst) >= limit {
				break
			}
			tag := normalizeTag(t)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			dst = append(dst, tag)
		}
		return dst
	}

	limit := profile.MaxHashtags
	if limit <= 0 {
		return nil
	}

	keywordTags := append(append([]string{}, keywords...), base...)

	// Reserve one slot for a keyword tag so platform boilerplate never
	// crowds out the moment's context.
	reserve := 0
	if len(keywordTags) > 0 && limit > 1 {
		reserve = 1
	}
	out := add(nil, profile.Tags, limit-reserve)
	out = add(out, keywordTags, limit)
	return out
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// normalizeTag lowercases and strips characters that break hashtags.
func normalizeTag(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '#' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TruncateGraphemes cuts s to at most max grapheme clusters without splitting
// a multi-byte cluster.
func TruncateGraphemes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if uniseg.GraphemeClusterCount(s) <= max {
		return s
	}
	g := uniseg.NewGraphemes(s)
	var b strings.Builder
	for i := 0; i < max && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	return b.String()
}

// SuggestClip derives deterministic suggested content for a detected moment,
// used in the hype_moment_detected event payload.
func SuggestClip(m *models.DetectedMoment) models.SuggestedClip {
	title := "Hype moment"
	if len(m.Keywords) > 0 {
		title = capitalize(m.Keywords[0]) + " moment"
	}
	description := "Clipped live at " + m.Timestamp.UTC().Format("15:04:05") + " UTC."

	tags := []string{"hype", "live"}
	for _, kw := range m.Keywords {
		if t := normalizeTag(kw); t != "" {
			tags = append(tags, t)
		}
	}

	return models.SuggestedClip{
		StartTime:   m.ClipWindow.Start,
		EndTime:     m.ClipWindow.End,
		Title:       title,
		Description: description,
		Hashtags:    tags,
	}
}
