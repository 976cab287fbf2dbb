package dispatch

import (
	"regexp"
	"strings"
)

var (
	reBold      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnder = regexp.MustCompile(`__(.+?)__`)
	reItalic    = regexp.MustCompile(`\*(.+?)\*`)
	reItalUnder = regexp.MustCompile(`_(.+?)_`)
	reStrike    = regexp.MustCompile(`~~(.+?)~~`)
	reLink      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reImage     = regexp.MustCompile(`!\[(.+?)\]\(.+?\)`)
	reCode      = regexp.MustCompile("`(.+?)`")
	reQuote     = regexp.MustCompile(`(?m)^>\s*`)
	reHeading   = regexp.MustCompile(`(?m)^#+\s*`)
	reRule      = regexp.MustCompile(`(?m)^[\-\*]{3,}\s*$`)
	reFontTag   = regexp.MustCompile(`<font[^>]*>(.+?)</font>`)
	reHTMLTag   = regexp.MustCompile(`<[^>]+>`)
	reBlankRuns = regexp.MustCompile(`\n{3,}`)

	reMrkdwnLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reMrkdwnBold = regexp.MustCompile(`\*\*([^*]+)\*\*`)
)

// StripMarkdown removes rich formatting for plain-text channels and for the
// too-long degrade path.
func StripMarkdown(text string) string {
	text = reImage.ReplaceAllString(text, "$1")
	text = reLink.ReplaceAllString(text, "$1 $2")
	text = reBold.ReplaceAllString(text, "$1")
	text = reBoldUnder.ReplaceAllString(text, "$1")
	text = reItalic.ReplaceAllString(text, "$1")
	text = reItalUnder.ReplaceAllString(text, "$1")
	text = reStrike.ReplaceAllString(text, "$1")
	text = reCode.ReplaceAllString(text, "$1")
	text = reQuote.ReplaceAllString(text, "")
	text = reHeading.ReplaceAllString(text, "")
	text = reRule.ReplaceAllString(text, "")
	text = reFontTag.ReplaceAllString(text, "$1")
	text = reHTMLTag.ReplaceAllString(text, "")
	text = reBlankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ToMrkdwn converts standard markdown to Slack's mrkdwn dialect.
func ToMrkdwn(text string) string {
	text = reMrkdwnLink.ReplaceAllString(text, "<$2|$1>")
	text = reMrkdwnBold.ReplaceAllString(text, "*$1*")
	return text
}
