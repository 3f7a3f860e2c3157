// Package namemeta extracts rendering metadata from media filenames.
//
// Release names carry title, year, season/episode markers, resolution, and
// codec tokens in loosely standardized forms. The move executor uses the
// parsed fields to render destination templates; every field has a fallback
// so a template never renders an empty path segment.
package namemeta
