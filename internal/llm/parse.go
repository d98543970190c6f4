package llm

import (
	"strings"

	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

const degradedSummaryLimit = 200

// parsed is the tagged outcome of decoding model output: either a
// structured {summary, emotions} pair or a degraded best-effort repair
// of malformed text. Parsing never fails.
type parsed struct {
	summary  string
	emotions []emotion.Label
	degraded bool
}

// parseClassifierOutput decodes the 要約:/感情: line format the prompt
// asks for. Continuation lines extend the current section. When the
// output carries neither marker, the leading text becomes the summary
// and the whole response is scanned for known labels.
func parseClassifierOutput(raw string) parsed {
	var (
		summary string
		labels  []emotion.Label
		section string
	)

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "要約:"), strings.HasPrefix(line, "## 要約"):
			section = "summary"
			text := trimMarker(line, "要約:", "## 要約")
			if text != "" {
				summary = text
			}
			continue
		case strings.HasPrefix(line, "感情:"), strings.HasPrefix(line, "## 感情"):
			section = "emotions"
			text := trimMarker(line, "感情:", "## 感情")
			if text != "" {
				labels = append(labels, extractEmotions(text)...)
			}
			continue
		}

		if line == "" {
			continue
		}
		switch section {
		case "summary":
			if summary == "" {
				summary = line
			} else {
				summary += " " + line
			}
		case "emotions":
			labels = append(labels, extractEmotions(line)...)
		}
	}

	if summary == "" && len(labels) == 0 {
		return parsed{
			summary:  truncateRunes(strings.TrimSpace(raw), degradedSummaryLimit),
			emotions: extractEmotions(raw),
			degraded: true,
		}
	}

	degraded := summary == ""
	if degraded {
		summary = truncateRunes(strings.TrimSpace(raw), degradedSummaryLimit)
	}

	return parsed{
		summary:  strings.TrimSpace(summary),
		emotions: dedupeLabels(labels),
		degraded: degraded,
	}
}

func trimMarker(line string, markers ...string) string {
	for _, m := range markers {
		line = strings.TrimPrefix(line, m)
	}
	return strings.TrimSpace(strings.TrimLeft(line, ":： "))
}

// extractEmotions pulls known labels out of free-form text. Exact
// tokens split on common delimiters win; when none match, the text is
// scanned for embedded label substrings in vocabulary order.
func extractEmotions(text string) []emotion.Label {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '、', ',', '，', '・', ' ', '　', '/', '。':
			return true
		}
		return false
	})

	var out []emotion.Label
	for _, tok := range tokens {
		l := emotion.Label(strings.TrimSpace(tok))
		if emotion.Valid(l) {
			out = append(out, l)
		}
	}
	if len(out) > 0 {
		return dedupeLabels(out)
	}

	for _, l := range emotion.All() {
		if strings.Contains(text, string(l)) {
			out = append(out, l)
		}
	}
	return out
}

func dedupeLabels(labels []emotion.Label) []emotion.Label {
	seen := make(map[emotion.Label]struct{}, len(labels))
	out := make([]emotion.Label, 0, len(labels))
	for _, l := range labels {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
