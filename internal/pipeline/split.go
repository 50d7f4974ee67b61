package pipeline

import "strings"

// Segments partitions a submission into independent synthesis units. With
// autosplit on, the text is split on line boundaries, each line trimmed and
// empty lines discarded; with autosplit off the whole submission is a single
// segment. A blank submission yields no segments.
func Segments(text string, autosplit bool) []string {
	if !autosplit {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
