package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paper = `Stellar flares are sudden releases of magnetic energy.

They are observed across the electromagnetic spectrum and can affect the habitability of orbiting planets.
We analyse two years of photometry from a survey of M dwarfs.

The flare frequency distribution follows a power law with index close to two. Thermal storage in the
upper photosphere explains the gradual decay phase. Our conclusions hold for both fully and partially
convective stars, with some caveats discussed in the final section.`

func TestNewDefaults(t *testing.T) {
	s := New(0, -1)
	assert.Equal(t, DefaultSize, s.Size())
	assert.Equal(t, 0, s.Overlap())

	s = New(100, 150)
	assert.Less(t, s.Overlap(), s.Size())
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, New(100, 10).Split(""))
	assert.Empty(t, New(100, 10).Split("  \n\n "))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks := New(500, 50).Split("A short abstract.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short abstract.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
}

func TestSplitBoundsAndOverlap(t *testing.T) {
	for _, tc := range []struct {
		name          string
		size, overlap int
		text          string
	}{
		{"paragraphs", 120, 20, paper},
		{"no overlap", 80, 0, paper},
		{"no separators", 50, 10, strings.Repeat("abcdefghij", 23)},
		{"unicode", 40, 8, strings.Repeat("Sternentstehung in Galaxien: ß, é, 星 ", 9)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.size, tc.overlap)
			chunks := s.Split(tc.text)
			require.NotEmpty(t, chunks)

			var rebuilt []rune
			for i, c := range chunks {
				r := []rune(c.Text)
				assert.LessOrEqual(t, len(r), tc.size, "chunk %d too long", i)
				assert.Equal(t, i, c.Index)
				if i == 0 {
					rebuilt = append(rebuilt, r...)
					continue
				}
				prev := []rune(chunks[i-1].Text)
				require.GreaterOrEqual(t, len(r), tc.overlap)
				assert.Equal(t, string(prev[len(prev)-tc.overlap:]), string(r[:tc.overlap]), "overlap between %d and %d", i-1, i)
				rebuilt = append(rebuilt, r[tc.overlap:]...)
			}
			assert.Equal(t, tc.text, string(rebuilt))
			assert.Equal(t, len([]rune(tc.text)), chunks[len(chunks)-1].End)
		})
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	text := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30) + "\n" + strings.Repeat("c", 30)
	chunks := New(50, 5).Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"), "first chunk should end on the paragraph break: %q", chunks[0].Text)
}

func TestSplitDeterministic(t *testing.T) {
	s := New(90, 15)
	first := s.Split(paper)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, New(90, 15).Split(paper))
	}
}
