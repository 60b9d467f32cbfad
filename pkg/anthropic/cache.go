package anthropic

// SystemPrompt builds the system blocks for a conversational turn. The
// static persona carries a cache breakpoint so repeated turns hit the
// prompt cache; the per-turn context follows uncached. An empty dynamic
// part is omitted.
func SystemPrompt(static, dynamic string) []SystemBlock {
	blocks := []SystemBlock{{
		Text:         static,
		CacheControl: &CacheControl{TTL: "5m"},
	}}
	if dynamic != "" {
		blocks = append(blocks, SystemBlock{Text: dynamic})
	}
	return blocks
}
