package page

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/JakeFAU/album-list/internal/album"
)

var listTemplate = template.Must(template.New("albumList").Parse(
	`<ul class="albumList">` +
		`{{range .}}<li><a href="{{.Link}}" target="_blank"><div class="image"><img src="{{.ThumbnailURL}}"/></div><div class="title">{{.Title}}</div></a></li>{{end}}` +
		`</ul>`,
))

// Render decodes payload and returns the album list markup. Items keep the
// payload order.
func Render(payload []byte) (string, []album.Album, error) {
	albums, err := album.Decode(payload)
	if err != nil {
		return "", nil, err
	}
	html, err := RenderAlbums(albums)
	if err != nil {
		return "", nil, err
	}
	return html, albums, nil
}

// RenderAlbums returns the markup for already decoded albums.
func RenderAlbums(albums []album.Album) (string, error) {
	var b strings.Builder
	if err := listTemplate.Execute(&b, albums); err != nil {
		return "", fmt.Errorf("render album list: %w", err)
	}
	return b.String(), nil
}
