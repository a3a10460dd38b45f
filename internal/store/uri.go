package store

import "strings"

const fileURIScheme = "file://"

// toURI converts an absolute filesystem path to the file://-scheme URI
// persisted in the maps and exes tables.
func toURI(path string) string {
	if strings.HasPrefix(path, fileURIScheme) {
		return path
	}
	return fileURIScheme + path
}

// fromURI strips the file:// scheme, returning the bare absolute path.
func fromURI(uri string) string {
	return strings.TrimPrefix(uri, fileURIScheme)
}
