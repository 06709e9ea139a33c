package course

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// fallbackSlug is used when a title normalizes to nothing.
const fallbackSlug = "course"

// maxSlugAttempts bounds the base, base-2, base-3 ... search.
const maxSlugAttempts = 1000

var (
	slugInvalidRe = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaceRe   = regexp.MustCompile(`\s+`)
	slugDashRe    = regexp.MustCompile(`-+`)
)

// normalize lowercases s, keeps only [a-z0-9], whitespace and hyphens, turns
// whitespace runs into single hyphens and trims hyphens from both ends. The
// result may be empty.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = slugInvalidRe.ReplaceAllString(s, "")
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugDashRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// topicKey folds a submitted topic for duplicate detection: case and
// whitespace runs are ignored, every other character is kept.
func topicKey(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

// Slugify returns the URL-safe form of s, or "course" if nothing survives
// normalization.
func Slugify(s string) string {
	if n := normalize(s); n != "" {
		return n
	}
	return fallbackSlug
}

// slugChecker reports whether a slug is already taken for an owner.
type slugChecker interface {
	SlugExists(ctx context.Context, owner, slug string) (bool, error)
}

// allocateSlug returns the first free slug among base, base-2, base-3 ...
// for owner. The result is only a candidate: the storage constraint on
// (owner, slug) decides races between concurrent assemblies.
func allocateSlug(ctx context.Context, sc slugChecker, owner, base string) (string, error) {
	candidate := base
	for n := 2; n <= maxSlugAttempts+1; n++ {
		taken, err := sc.SlugExists(ctx, owner, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxSlugAttempts)
}
