package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxGeneratedKey = 30
	previewRunes    = 100
)

var (
	validKeyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// ValidKey reports whether key may be supplied by a caller.
func ValidKey(key string) bool {
	return validKeyRe.MatchString(key)
}

// GenerateKey derives a key from the first three words of content.
func GenerateKey(content string, now time.Time) string {
	var parts []string
	for _, w := range strings.Fields(strings.ToLower(content)) {
		if len(parts) == 3 {
			break
		}
		if w = nonAlnumRe.ReplaceAllString(w, ""); w != "" {
			parts = append(parts, w)
		}
	}
	key := strings.Join(parts, "_")
	if len(key) > maxGeneratedKey {
		key = strings.TrimRight(key[:maxGeneratedKey], "_")
	}
	if key == "" {
		key = fmt.Sprintf("memory_%d", now.Unix())
	}
	return key
}

// Preview returns the first 100 characters of content, marked when cut.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	r := []rune(content)
	return string(r[:previewRunes]) + "..."
}

// NormalizeTags trims, lowercases and de-duplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// resolveKey applies the key rules for req. exists reports whether a key is taken.
func resolveKey(ctx context.Context, req StoreRequest, now time.Time, exists func(context.Context, string) (bool, error)) (string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", ErrEmptyContent
	}
	if req.Key != "" {
		if !ValidKey(req.Key) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, req.Key)
		}
		taken, err := exists(ctx, req.Key)
		if err != nil {
			return "", err
		}
		if taken && !req.Overwrite {
			return "", fmt.Errorf("%w: %s", ErrKeyExists, req.Key)
		}
		return req.Key, nil
	}

	key := GenerateKey(req.Content, now)
	for {
		taken, err := exists(ctx, key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
		key = GenerateKey(req.Content, now) + "_" + uuid.NewString()[:8]
	}
}
