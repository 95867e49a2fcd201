package location

import "net/url"

const mapsDirBase = "https://www.google.com/maps/dir/"

// BuildMapLink returns a Google Maps directions link from origin to
// destination with both endpoints percent-encoded.
func BuildMapLink(origin, destination string) string {
	return mapsDirBase + url.PathEscape(origin) + "/" + url.PathEscape(destination) + "/"
}
