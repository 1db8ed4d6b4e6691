package store

// DedupeStories keeps the last row per external id, preserving first-seen order.
// A single upsert statement may not touch the same row twice.
func DedupeStories(rows []StoryRow) []StoryRow {
	return dedupe(rows, func(r StoryRow) int64 { return r.ExternalID })
}

// DedupeComments keeps the last row per external id, preserving first-seen order.
func DedupeComments(rows []CommentRow) []CommentRow {
	return dedupe(rows, func(r CommentRow) int64 { return r.ExternalID })
}

// DedupeUsers keeps the last row per handle, preserving first-seen order.
func DedupeUsers(rows []UserRow) []UserRow {
	return dedupe(rows, func(r UserRow) string { return r.Username })
}

func dedupe[T any, K comparable](rows []T, key func(T) K) []T {
	pos := make(map[K]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}
