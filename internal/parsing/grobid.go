package parsing

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// TEIDocument mirrors the parts of a GROBID TEI response that are used.
type TEIDocument struct {
	IDNOs    []string     `xml:"teiHeader>fileDesc>sourceDesc>biblStruct>idno"`
	Keywords KeywordsRaw  `xml:"teiHeader>profileDesc>textClass>keywords"`
	Title    string       `xml:"teiHeader>fileDesc>titleStmt>title"`
	Date     string       `xml:"teiHeader>fileDesc>publicationStmt>date"`
	Abstract []Paragraph  `xml:"teiHeader>profileDesc>abstract>div>p"`
	Sections []SectionRaw `xml:"text>body>div"`
}

type SectionRaw struct {
	Head Paragraph   `xml:"head"`
	P    []Paragraph `xml:"p"`
}

// Paragraph keeps the inner markup so inline <ref> text such as "[12]" survives.
type Paragraph struct {
	Inner string `xml:",innerxml"`
}

func (p Paragraph) Text() string {
	return collapseSpace(charData(p.Inner))
}

type KeywordsRaw struct {
	Term       []string `xml:"term"`
	RawContent string   `xml:",innerxml"`
}

// DecodeTEI parses a processFulltextDocument response.
func DecodeTEI(data []byte) (*TEIDocument, error) {
	var doc TEIDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding TEI: %w", err)
	}
	return &doc, nil
}

// Blocks flattens the abstract and body into text blocks in document order.
// Sections without any paragraph text are dropped.
func (d *TEIDocument) Blocks() []Block {
	var blocks []Block
	if abstract := joinParagraphs(d.Abstract); abstract != "" {
		blocks = append(blocks, Block{Heading: "Abstract", Text: abstract})
	}
	for _, s := range d.Sections {
		text := joinParagraphs(s.P)
		if text == "" {
			continue
		}
		blocks = append(blocks, Block{Heading: s.Head.Text(), Text: text})
	}
	return blocks
}

// DOI returns the first DOI found among the header identifiers.
func (d *TEIDocument) DOI() string {
	for _, idno := range d.IDNOs {
		if doi := GetDOIFromString(idno); doi != "" {
			return doi
		}
	}
	return ""
}

// KeywordList returns the keyword terms, falling back to the raw keyword markup.
func (d *TEIDocument) KeywordList() []string {
	if len(d.Keywords.Term) > 0 {
		return removeEmptyAndTrim(d.Keywords.Term)
	}
	return extractKeywordsFromRawContent(d.Keywords.RawContent)
}

func joinParagraphs(ps []Paragraph) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		if t := p.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// charData returns the text content of an XML fragment, entities resolved.
func charData(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	dec := xml.NewDecoder(strings.NewReader("<x>" + fragment + "</x>"))
	dec.Strict = false
	var buf bytes.Buffer
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stripTags(fragment)
		}
		if cd, ok := tok.(xml.CharData); ok {
			buf.Write(cd)
		}
	}
	return buf.String()
}

var (
	tagRegex   = regexp.MustCompile(`<[^>]*>`)
	spaceRegex = regexp.MustCompile(`\s+`)
	doiRegex   = regexp.MustCompile(`\b(10\.[0-9]{4,}(?:\.[0-9]+)*/\S+)\b`)
	termRegex  = regexp.MustCompile(`(?i)<term>(.*?)</term>`)
)

func stripTags(s string) string {
	return tagRegex.ReplaceAllString(s, " ")
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

func extractKeywordsFromRawContent(content string) []string {
	if content == "" {
		return nil
	}
	var keywords []string
	for _, match := range termRegex.FindAllStringSubmatch(content, -1) {
		keywords = append(keywords, match[1])
	}
	return removeEmptyAndTrim(keywords)
}

func removeEmptyAndTrim(keywords []string) []string {
	var result []string
	for _, keyword := range keywords {
		trimmed := collapseSpace(keyword)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// GetDOIFromString Get DOI from string
func GetDOIFromString(content string) string {
	if content == "" {
		return ""
	}
	return doiRegex.FindString(content)
}
