package history

// Segment identifies the span of messages anchored by one genuine user
// turn: the user message itself plus every assistant/tool-result
// message the agent loop produced in answering it, up to (but not
// including) the next genuine user turn.
type Segment struct {
	Start int // inclusive index into the message slice
	End   int // exclusive index into the message slice
}

// Len reports how many messages fall in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// Segments partitions messages into user-anchored segments. A leading
// system message, if present, is not part of any segment. A message
// only starts a new segment when it is a genuine user turn: role user,
// not an internal reminder, and not a tool result.
func Segments(messages []Message) []Segment {
	var segments []Segment
	cur := -1

	for i, msg := range messages {
		if msg.Role == RoleSystem && i == 0 {
			continue
		}
		if isSegmentAnchor(msg) {
			if cur != -1 {
				segments = append(segments, Segment{Start: cur, End: i})
			}
			cur = i
			continue
		}
		if cur == -1 {
			// Message before any anchor (shouldn't normally happen once
			// the system message is skipped); start a synthetic segment
			// here so nothing is silently dropped.
			cur = i
		}
	}
	if cur != -1 {
		segments = append(segments, Segment{Start: cur, End: len(messages)})
	}
	return segments
}

func isSegmentAnchor(msg Message) bool {
	return msg.Role == RoleUser && !msg.IsInternalReminder && !msg.IsToolResult
}
