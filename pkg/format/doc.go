// Package format implements content negotiation: choosing the response
// content type from the $format query option and the Accept header for a
// given representation kind, and checking request content types.
package format
