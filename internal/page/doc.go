// Package page implements the album list page: it reads the filter from the
// page address, performs one callback fetch per load and renders the albums
// into the page's render target.
package page
