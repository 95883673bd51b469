// Package api hosts the album list page and its JSON twin over HTTP. Every
// GET of the page is one page load: the controller fetches the albums once
// and the response embeds the rendered list in the render target.
package api
