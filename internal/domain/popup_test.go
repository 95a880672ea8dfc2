package domain

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func popupFeature(props map[string]string) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{1, 2})
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestNewPopup(t *testing.T) {
	t.Run("title only", func(t *testing.T) {
		p, err := NewPopup(popupFeature(map[string]string{PropTitle: "Fountain"}))
		require.NoError(t, err)

		assert.Equal(t, "<strong>Fountain</strong>", p.HTML)
	})

	t.Run("capitalizes localizability", func(t *testing.T) {
		p, err := NewPopup(popupFeature(map[string]string{
			PropTitle:          "Fountain",
			PropLocalizability: "éasy to find",
		}))
		require.NoError(t, err)

		assert.Equal(t, "Éasy to find", p.Localizability)
		assert.Contains(t, p.HTML, "<br><p>Éasy to find</p>")
	})

	t.Run("image", func(t *testing.T) {
		p, err := NewPopup(popupFeature(map[string]string{
			PropTitle: "Fountain",
			PropImage: "https://example.com/f.jpg",
		}))
		require.NoError(t, err)

		assert.Contains(t, p.HTML, `alt="image of POI Fountain"`)
		assert.Contains(t, p.HTML, `src="https://example.com/f.jpg"`)
	})

	t.Run("escapes markup", func(t *testing.T) {
		p, err := NewPopup(popupFeature(map[string]string{PropTitle: "<script>x</script>"}))
		require.NoError(t, err)

		assert.NotContains(t, p.HTML, "<script>")
		assert.Contains(t, p.HTML, "&lt;script&gt;")
	})
}
