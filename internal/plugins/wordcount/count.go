package wordcount

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Count returns the number of words and non-space characters in the text
// of an HTML fragment. Script and style contents are skipped.
func Count(fragment string) (words, chars int) {
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return words, chars
		case html.StartTagToken:
			if skipped(z) {
				skip++
			}
		case html.EndTagToken:
			if skipped(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			words += len(strings.Fields(text))
			for _, r := range text {
				if !unicode.IsSpace(r) {
					chars++
				}
			}
		}
	}
}

func skipped(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
