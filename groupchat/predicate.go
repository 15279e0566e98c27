package groupchat

import "strings"

// buildTermination compiles the termination configuration into a single
// predicate. A custom function always wins. With only declarative
// parameters, the chat stops once the transcript reaches MaxMessages or the
// most recent content contains a completion indicator (case-sensitive
// substring). Without any configuration the result is nil and the engine's
// own round limit applies.
func buildTermination(cfg Config) TerminationFunc {
	if cfg.TerminationFunc != nil {
		return cfg.TerminationFunc
	}
	if cfg.MaxMessages <= 0 && len(cfg.CompletionIndicators) == 0 {
		return nil
	}

	maxMessages := cfg.MaxMessages
	indicators := make([]string, len(cfg.CompletionIndicators))
	copy(indicators, cfg.CompletionIndicators)

	return func(transcript []ChatRecord) bool {
		if maxMessages > 0 && len(transcript) >= maxMessages {
			return true
		}
		if len(transcript) == 0 {
			return false
		}
		last := transcript[len(transcript)-1].Content
		for _, indicator := range indicators {
			if strings.Contains(last, indicator) {
				return true
			}
		}
		return false
	}
}

// buildFilter compiles the filter configuration into a single predicate
// that reports whether a record may enter the transcript. A custom function
// always wins. Declaratively, a record is excluded when its sender is in
// ExcludedAgents or its content contains an ExcludedContent substring.
// Without any configuration the result is nil (everything passes).
func buildFilter(cfg Config) FilterFunc {
	if cfg.FilterFunc != nil {
		return cfg.FilterFunc
	}
	if len(cfg.ExcludedAgents) == 0 && len(cfg.ExcludedContent) == 0 {
		return nil
	}

	excludedAgents := make(map[string]struct{}, len(cfg.ExcludedAgents))
	for _, name := range cfg.ExcludedAgents {
		excludedAgents[name] = struct{}{}
	}
	excludedContent := make([]string, len(cfg.ExcludedContent))
	copy(excludedContent, cfg.ExcludedContent)

	return func(record ChatRecord) bool {
		if _, excluded := excludedAgents[record.Sender]; excluded {
			return false
		}
		for _, substr := range excludedContent {
			if strings.Contains(record.Content, substr) {
				return false
			}
		}
		return true
	}
}
