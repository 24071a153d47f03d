// Package secrets redacts credentials and contact details from free text.
//
// User queries pass through a Scrubber before they are logged or sent to
// the hosted model. Findings carry rule IDs and offsets but never the
// matched value.
package secrets
