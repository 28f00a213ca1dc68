// Package template renders notification text from {{token}} templates.
package template

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrMissingToken = errors.New("template token not found")
	ErrNoEmojiMatch = errors.New("no emoji match found")
)

var tokenPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Interpolate substitutes every {{token}} in tmpl. A token absent from values
// is an error, never an empty string.
func Interpolate(tmpl string, values map[string]string) (string, error) {
	var missing error
	out := tokenPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := tokenPattern.FindStringSubmatch(match)[1]
		v, ok := values[key]
		if !ok {
			if missing == nil {
				missing = fmt.Errorf("%w: value for template variable '%s' not found in '%s'",
					ErrMissingToken, key, strings.Join(sortedKeys(values), ","))
			}
			return match
		}
		return v
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SecondsSince renders whole seconds elapsed from referenceMillis, e.g. "5s".
func SecondsSince(now time.Time, referenceMillis int64) string {
	elapsed := float64(now.UnixMilli()-referenceMillis) / 1000
	return fmt.Sprintf("%ds", int64(math.Round(elapsed)))
}

// ShortSHA is the first seven characters of a commit sha.
func ShortSHA(sha string) string {
	if len(sha) < 7 {
		return sha
	}
	return sha[:7]
}

// CompareURL links the GitHub compare view between two revisions.
func CompareURL(repoFullName, base, head string) string {
	return fmt.Sprintf("https://github.com/%s/compare/%s...%s", repoFullName, base, head)
}

const maxRefLength = 30

// NiceRef strips one refs/heads/ or refs/tags/ prefix.
func NiceRef(ref string) string {
	if strings.HasPrefix(ref, "refs/heads/") {
		return strings.TrimPrefix(ref, "refs/heads/")
	}
	return strings.TrimPrefix(ref, "refs/tags/")
}

// TruncateRef returns NiceRef capped at 30 characters, without an ellipsis.
func TruncateRef(ref string) string {
	r := []rune(NiceRef(ref))
	if len(r) > maxRefLength {
		r = r[:maxRefLength]
	}
	return string(r)
}

const (
	maxCommitMessageLength = 30
	commitMessageKeep      = 28
)

// TruncateCommitMessage flattens newlines to spaces and shortens anything over
// 30 characters to its first 28 plus "...".
func TruncateCommitMessage(msg string) string {
	r := []rune(strings.ReplaceAll(msg, "\n", " "))
	if len(r) > maxCommitMessageLength {
		return string(r[:commitMessageKeep]) + "..."
	}
	return string(r)
}

// EmojiMatcher picks an emoji for refs starting with StartsWith.
type EmojiMatcher struct {
	StartsWith     string `yaml:"startsWith" json:"startsWith"`
	EmojiShortcode string `yaml:"emojiShortcode" json:"emojiShortcode"`
}

// EmojiForRef returns the emoji of the first matcher whose prefix ref starts with.
func EmojiForRef(ref string, matchers []EmojiMatcher) (string, error) {
	for _, m := range matchers {
		if strings.HasPrefix(ref, m.StartsWith) {
			return m.EmojiShortcode, nil
		}
	}
	return "", fmt.Errorf("%w for gitref '%s'", ErrNoEmojiMatch, ref)
}
