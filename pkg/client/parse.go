package client

import (
	"encoding/json"
	"strings"

	"github.com/menta2k/cropmask/pkg/types"
)

// NoPerson is the result reported when a reply cannot be understood
func NoPerson() *types.SegmentationResult {
	return &types.SegmentationResult{Label: "none"}
}

// ParseSegmentation parses a model reply into a SegmentationResult.
// Replies without usable JSON yield NoPerson rather than an error, so a
// chatty model degrades to "nothing found".
func ParseSegmentation(raw string) *types.SegmentationResult {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return NoPerson()
	}

	var result types.SegmentationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return NoPerson()
	}
	result.Box = clampBox(result.Box)
	result.Outlines = clampOutlines(result.Outlines)
	return &result
}

// SanitizeModelJSON removes code fences, comments and trailing commas, and
// keeps only the outermost object
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = stripComments(raw)
	raw = stripTrailingCommas(raw)

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// stripComments drops // and /* */ comments outside string literals
func stripComments(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		switch {
		case raw[i] == '"':
			end := stringEnd(raw, i)
			b.WriteString(raw[i:end])
			i = end - 1
		case strings.HasPrefix(raw[i:], "//"):
			end := strings.IndexByte(raw[i:], '\n')
			if end < 0 {
				return b.String()
			}
			i += end - 1
		case strings.HasPrefix(raw[i:], "/*"):
			end := strings.Index(raw[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		default:
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

// stripTrailingCommas drops commas that directly precede a closing bracket,
// outside string literals
func stripTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '"':
			end := stringEnd(raw, i)
			b.WriteString(raw[i:end])
			i = end - 1
		case ',':
			rest := strings.TrimLeft(raw[i+1:], " \t\r\n")
			if rest != "" && (rest[0] == '}' || rest[0] == ']') {
				continue
			}
			b.WriteByte(',')
		default:
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

// stringEnd returns the index just past the string literal opening at i
func stringEnd(raw string, i int) int {
	for j := i + 1; j < len(raw); j++ {
		switch raw[j] {
		case '\\':
			j++
		case '"':
			return j + 1
		}
	}
	return len(raw)
}

func clampBox(b types.Box) types.Box {
	return types.Box{X: clamp01(b.X), Y: clamp01(b.Y), W: clamp01(b.W), H: clamp01(b.H)}
}

// clampOutlines pulls points into [0,1] and drops outlines with fewer than 3 points
func clampOutlines(outlines [][]types.NormPoint) [][]types.NormPoint {
	out := outlines[:0]
	for _, o := range outlines {
		if len(o) < 3 {
			continue
		}
		for i := range o {
			o[i] = types.NormPoint{X: clamp01(o[i].X), Y: clamp01(o[i].Y)}
		}
		out = append(out, o)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
