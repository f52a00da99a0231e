package parsing

import "strings"

// Block is one heading-delimited piece of extracted paper text.
type Block struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// FullText renders blocks as plain text: each heading on its own line above
// its text, blocks separated by a blank line.
func FullText(blocks []Block) string {
	var b strings.Builder
	for _, block := range blocks {
		if strings.TrimSpace(block.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if block.Heading != "" {
			b.WriteString(block.Heading)
			b.WriteString("\n")
		}
		b.WriteString(block.Text)
	}
	return b.String()
}
