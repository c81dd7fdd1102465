package optimizer_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/rivo/uniseg"

	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/optimizer"
)

func tiktokProfile() models.PlatformProfile {
	return models.PlatformProfile{
		Name:           "tiktok",
		MaxTitleLength: 150,
		MaxHashtags:    8,
		TitlePrefix:    "🎬",
		DescSuffix:     " #fyp",
		AspectRatio:    "9:16",
		Tags:           []string{"fyp", "viral", "clips"},
	}
}

func TestOptimizeIsDeterministic(t *testing.T) {
	base := optimizer.Content{
		Title:       "Insane clutch on stream",
		Description: "You had to be there.",
		Hashtags:    []string{"gaming"},
	}
	keywords := []string{"clutch", "ace"}
	profile := tiktokProfile()

	a := optimizer.Optimize(base, profile, keywords)
	b := optimizer.Optimize(base, profile, keywords)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Optimize not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestOptimizeTitleWithinLimitForAllProfiles(t *testing.T) {
	longTitle := strings.Repeat("émoji🔥", 120)
	base := optimizer.Content{Title: longTitle}
	profiles := []models.PlatformProfile{
		tiktokProfile(),
		{Name: "youtube", MaxTitleLength: 100, MaxHashtags: 15, TitlePrefix: "🔥", Tags: []string{"shorts"}},
		{Name: "twitter", MaxTitleLength: 280, MaxHashtags: 3},
		{Name: "tiny", MaxTitleLength: 3, MaxHashtags: 1, TitlePrefix: "✨"},
	}
	for _, p := range profiles {
		got := optimizer.Optimize(base, p, nil)
		if n := uniseg.GraphemeClusterCount(got.Title); n > p.MaxTitleLength {
			t.Fatalf("%s: title %d graphemes, limit %d", p.Name, n, p.MaxTitleLength)
		}
		if p.TitlePrefix != "" && !strings.HasPrefix(got.Title, p.TitlePrefix) {
			t.Fatalf("%s: prefix lost: %q", p.Name, got.Title)
		}
	}
}

func TestTruncateGraphemesDoesNotSplitClusters(t *testing.T) {
	// Flag emoji and combining sequences are multi-rune grapheme clusters.
	s := "a🇩🇪b👩‍👩‍👧c"
	for max := 0; max <= 5; max++ {
		got := optimizer.TruncateGraphemes(s, max)
		if n := uniseg.GraphemeClusterCount(got); n > max {
			t.Fatalf("max %d: got %d clusters (%q)", max, n, got)
		}
		if !strings.HasPrefix(s, got) {
			t.Fatalf("max %d: %q is not a prefix of input", max, got)
		}
	}
	if got := optimizer.TruncateGraphemes(s, 100); got != s {
		t.Fatalf("no-op truncation changed string: %q", got)
	}
}

func TestOptimizeHashtagCapAndKeywordRule(t *testing.T) {
	base := optimizer.Content{Hashtags: []string{"gaming", "esports"}}
	profile := tiktokProfile()
	profile.MaxHashtags = 4

	got := optimizer.Optimize(base, profile, []string{"clutch"})
	if len(got.Hashtags) > 4 {
		t.Fatalf("hashtags exceed cap: %v", got.Hashtags)
	}
	found := false
	for _, h := range got.Hashtags {
		if h == "clutch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("keyword tag missing from %v", got.Hashtags)
	}
}

func TestOptimizeDeduplicatesAndNormalizesTags(t *testing.T) {
	base := optimizer.Content{Hashtags: []string{"#Viral", "CLIPS"}}
	got := optimizer.Optimize(base, tiktokProfile(), nil)

	seen := make(map[string]int)
	for _, h := range got.Hashtags {
		if h != strings.ToLower(h) || strings.Contains(h, "#") {
			t.Fatalf("tag not normalized: %q", h)
		}
		seen[h]++
	}
	if seen["viral"] != 1 || seen["clips"] != 1 {
		t.Fatalf("duplicate tags in %v", got.Hashtags)
	}
}

func TestOptimizeDescriptionSuffix(t *testing.T) {
	base := optimizer.Content{Description: "What a play."}
	got := optimizer.Optimize(base, tiktokProfile(), nil)
	if got.Description != "What a play. #fyp" {
		t.Fatalf("description = %q", got.Description)
	}
}
