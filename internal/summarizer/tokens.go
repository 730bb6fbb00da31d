package summarizer

import "unicode/utf8"

const charsPerToken = 4

// EstimateTokens approximates the model token count of text as
// ceil(characters / 4). It is a routing signal only: the ratio is tuned for
// English and drifts for other scripts and newer tokenizers.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)

	return (n + charsPerToken - 1) / charsPerToken
}
