package domain

import (
	"bytes"
	"html/template"
	"unicode"
	"unicode/utf8"

	"github.com/paulmach/orb/geojson"
)

// Popup is the content shown when a POI is clicked.
type Popup struct {
	Title          string `json:"title"`
	Localizability string `json:"localizability,omitempty"`
	Image          string `json:"img,omitempty"`
	HTML           string `json:"html"`
}

var popupTmpl = template.Must(template.New("popup").Parse(
	`<strong>{{.Title}}</strong>` +
		`{{if .Localizability}}<br><p>{{.Localizability}}</p>{{end}}` +
		`{{if .Image}}<br><img style="max-width: 100%; height: auto; max-height: 200px; margin: 8px auto 0; display: block;" alt="image of POI {{.Title}}" src="{{.Image}}">{{end}}`,
))

// NewPopup builds popup content from a projected feature. The
// localizability text is shown with its first letter upper-cased.
func NewPopup(f *geojson.Feature) (Popup, error) {
	p := Popup{
		Title:          f.Properties.MustString(PropTitle, ""),
		Localizability: capitalize(f.Properties.MustString(PropLocalizability, "")),
		Image:          f.Properties.MustString(PropImage, ""),
	}
	var buf bytes.Buffer
	if err := popupTmpl.Execute(&buf, p); err != nil {
		return Popup{}, err
	}
	p.HTML = buf.String()
	return p, nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
