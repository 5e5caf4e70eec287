package engine

import "strings"

// CountWords returns the whitespace-delimited word count of a text
func CountWords(text string) int {
	return len(strings.Fields(text))
}
