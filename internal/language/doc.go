// Package language canonicalizes ISO 639 language codes.
//
// The catalog stores exactly one representation per language: the ISO 639-2/B
// three-letter bibliographic code (e.g. "fre", not "fra" or "fr"). Normalize
// accepts 639-1, 639-2/B, 639-2/T, and full English names; Match compares two
// codes across standards, treating the undefined code "und" (and empty input)
// as equal to itself only.
package language
