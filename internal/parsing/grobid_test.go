package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTEI = `<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0">
  <teiHeader>
    <fileDesc>
      <titleStmt><title level="a" type="main">Starspots on Young Suns</title></titleStmt>
      <publicationStmt><date type="published" when="2024-05-01">1 May 2024</date></publicationStmt>
      <sourceDesc>
        <biblStruct>
          <idno type="arXiv">arXiv:2405.00001v1</idno>
          <idno type="DOI">10.1234/abcd.5678</idno>
        </biblStruct>
      </sourceDesc>
    </fileDesc>
    <profileDesc>
      <textClass><keywords><term>starspots</term><term> stellar  activity </term></keywords></textClass>
      <abstract><div><p>We study spots &amp; flares.</p></div></abstract>
    </profileDesc>
  </teiHeader>
  <text>
    <body>
      <div><head n="1">Introduction</head>
        <p>Spots were reported before <ref type="bibr" target="#b0">[1]</ref>, see also
           <ref type="bibr">(Smith et al., 2020)</ref>.</p>
        <p>Second paragraph.</p>
      </div>
      <div><head>Empty</head></div>
      <div><head>Conclusions</head><p>Spots are common.</p></div>
    </body>
  </text>
</TEI>`

func TestDecodeTEIBlocks(t *testing.T) {
	doc, err := DecodeTEI([]byte(sampleTEI))
	require.NoError(t, err)

	assert.Equal(t, "Starspots on Young Suns", doc.Title)
	blocks := doc.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, Block{Heading: "Abstract", Text: "We study spots & flares."}, blocks[0])
	assert.Equal(t, "Introduction", blocks[1].Heading)
	assert.Equal(t, "Spots were reported before [1], see also (Smith et al., 2020).\nSecond paragraph.", blocks[1].Text)
	assert.Equal(t, Block{Heading: "Conclusions", Text: "Spots are common."}, blocks[2])
}

func TestDecodeTEIMetadata(t *testing.T) {
	doc, err := DecodeTEI([]byte(sampleTEI))
	require.NoError(t, err)
	assert.Equal(t, "10.1234/abcd.5678", doc.DOI())
	assert.Equal(t, []string{"starspots", "stellar activity"}, doc.KeywordList())
}

func TestDecodeTEIMalformed(t *testing.T) {
	_, err := DecodeTEI([]byte("<TEI><text>"))
	assert.Error(t, err)
}

func TestDecodeTEIWithoutBody(t *testing.T) {
	doc, err := DecodeTEI([]byte(`<TEI><teiHeader/></TEI>`))
	require.NoError(t, err)
	assert.Empty(t, doc.Blocks())
}

func TestFullText(t *testing.T) {
	text := FullText([]Block{
		{Heading: "Intro", Text: "a"},
		{Heading: "Skipped", Text: "  "},
		{Text: "b"},
	})
	assert.Equal(t, "Intro\na\n\nb", text)
	assert.Equal(t, "", FullText(nil))
}

func TestGetDOIFromString(t *testing.T) {
	assert.Equal(t, "10.1016/j.chemosphere.2017.04.029", GetDOIFromString("doi: 10.1016/j.chemosphere.2017.04.029"))
	assert.Equal(t, "", GetDOIFromString("no identifier here"))
	assert.Equal(t, "", GetDOIFromString(""))
}
