package page

import (
	"regexp"
	"strings"
)

// FilterParamName is the page address parameter forwarded to the endpoint.
const FilterParamName = "filter"

// FilterParam returns the first raw value of name in pageURL, or "" when the
// parameter is absent. The value is not decoded; it is forwarded verbatim.
func FilterParam(pageURL, name string) string {
	re, err := regexp.Compile(`[?&]` + regexp.QuoteMeta(name) + `=([^&#]*)`)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(pageURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// BuildRequestURL joins the endpoint base, the callback parameter and the
// optional filter. An empty filter adds no suffix at all.
func BuildRequestURL(base, callbackName, filter string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?callback=")
	b.WriteString(callbackName)
	if filter != "" {
		b.WriteString("&" + FilterParamName + "=")
		b.WriteString(filter)
	}
	return b.String()
}
