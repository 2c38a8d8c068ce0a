package models

// DedupeSources returns sources without repeated URIs. The first occurrence of each URI wins and the
// original order is preserved. A nil or empty input yields nil.
func DedupeSources(sources []Source) []Source {
	if len(sources) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(sources))
	res := make([]Source, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.URI]; ok {
			continue
		}
		seen[s.URI] = struct{}{}
		res = append(res, s)
	}
	return res
}

// Clone returns a copy of m that shares no slices with it.
func (m Message) Clone() Message {
	if m.GroundingSources != nil {
		m.GroundingSources = append([]Source(nil), m.GroundingSources...)
	}
	return m
}

// CloneMessages returns a deep copy of messages.
func CloneMessages(messages []Message) []Message {
	res := make([]Message, len(messages))
	for i, msg := range messages {
		res[i] = msg.Clone()
	}
	return res
}
