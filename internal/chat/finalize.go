package chat

import (
	"github.com/samsaffron/llm-gateway/internal/frame"
)

// Annotations appended to a finalized message whose stream did not end
// with a normal stop.
const (
	SafetyAnnotation      = "\n\n---\n**Stopped for safety reasons.**"
	LengthAnnotation      = "\n\n---\n**Length limit reached.**"
	InterruptedAnnotation = "\n\n---\n**Interrupted.**"
)

// Annotation returns the text appended for reason, or "" for a normal or
// absent finish reason.
func Annotation(reason frame.FinishReason) string {
	switch reason {
	case frame.FinishNone, frame.FinishStop:
		return ""
	case frame.FinishSafety:
		return SafetyAnnotation
	case frame.FinishLength:
		return LengthAnnotation
	default:
		return InterruptedAnnotation
	}
}

// DedupCitations removes citations whose URI was already seen, keeping the
// first occurrence and the original order.
func DedupCitations(citations []frame.Citation) []frame.Citation {
	if len(citations) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(citations))
	out := make([]frame.Citation, 0, len(citations))
	for _, c := range citations {
		if _, ok := seen[c.URI]; ok {
			continue
		}
		seen[c.URI] = struct{}{}
		out = append(out, c)
	}
	return out
}

// errorText is written into a placeholder when its generation fails. Text
// that already streamed is kept above it.
func errorText(content string, err error) string {
	annotation := "**Error: " + err.Error() + "**"
	if content == "" {
		return annotation
	}
	return content + "\n\n" + annotation
}
