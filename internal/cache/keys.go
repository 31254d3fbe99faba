package cache

import "fmt"

// HistoryGenerationKey counts appended predictions. Cached history pages are
// keyed by it, so a page built before an append is never read afterwards.
const HistoryGenerationKey = "history:generation"

// HistoryKey names the cached newest-first history page for one generation.
func HistoryKey(generation string, local uint64) string {
	return fmt.Sprintf("history:recent:%s:%d", generation, local)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
