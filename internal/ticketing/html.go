package ticketing

import "strings"

var blockTagPrefixes = []string{
	"<div", "<p", "<table", "<ul", "<ol", "<h1", "<h2", "<h3", "<h4", "<h5", "<h6",
}

// HTMLBody converts plain ticket body text to the HTML the desk API expects:
// newlines become <br>, and the result is wrapped in a <div> unless the text
// already starts with a block-level tag. Inline HTML in the text passes
// through untouched.
func HTMLBody(text string) string {
	html := strings.ReplaceAll(text, "\n", "<br>")
	lead := strings.ToLower(strings.TrimSpace(html))
	for _, tag := range blockTagPrefixes {
		if strings.HasPrefix(lead, tag) {
			return html
		}
	}
	return "<div>" + html + "</div>"
}
