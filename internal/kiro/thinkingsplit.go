package kiro

import "strings"

const (
	thinkingOpenTag  = "<thinking>"
	thinkingCloseTag = "</thinking>"
)

// ThinkingSplitter accumulates streamed text and separates <thinking>...
// </thinking> spans from ordinary text, since Kiro interleaves them in the
// same text stream rather than emitting a distinct thinking event. Chunk
// boundaries can fall in the middle of a tag, so output is withheld until
// it is certain it isn't a partial tag.
type ThinkingSplitter struct {
	buf        strings.Builder
	inThinking bool
}

// Split is what one Feed call yields: ordinary text and/or thinking text
// newly safe to emit.
type Split struct {
	Text     string
	Thinking string
}

// Feed appends chunk and returns whatever text/thinking content is now safe
// to emit. Call Flush at stream end to release anything still withheld.
func (s *ThinkingSplitter) Feed(chunk string) Split {
	s.buf.WriteString(chunk)
	return s.drain(false)
}

// Flush releases any withheld buffered content at stream end, regardless of
// whether it could still theoretically be a partial tag.
func (s *ThinkingSplitter) Flush() Split {
	return s.drain(true)
}

func (s *ThinkingSplitter) drain(final bool) Split {
	var out Split
	buffered := s.buf.String()
	s.buf.Reset()

	for {
		tag := thinkingCloseTag
		if !s.inThinking {
			tag = thinkingOpenTag
		}

		idx := strings.Index(buffered, tag)
		if idx == -1 {
			safeLen := len(buffered)
			if !final {
				safeLen = safeSuffixBoundary(buffered, tag)
			}
			emit(&out, s.inThinking, buffered[:safeLen])
			s.buf.WriteString(buffered[safeLen:])
			return out
		}

		emit(&out, s.inThinking, buffered[:idx])
		buffered = buffered[idx+len(tag):]
		s.inThinking = !s.inThinking
	}
}

func emit(out *Split, inThinking bool, text string) {
	if text == "" {
		return
	}
	if inThinking {
		out.Thinking += text
	} else {
		out.Text += text
	}
}

// safeSuffixBoundary returns the length of the prefix of buffered that
// cannot possibly be the start of tag, so everything before it may be
// emitted now while the rest is held back for the next chunk.
func safeSuffixBoundary(buffered, tag string) int {
	maxCheck := len(tag) - 1
	if maxCheck > len(buffered) {
		maxCheck = len(buffered)
	}
	for l := maxCheck; l > 0; l-- {
		suffix := buffered[len(buffered)-l:]
		if strings.HasPrefix(tag, suffix) {
			return len(buffered) - l
		}
	}
	return len(buffered)
}
