// Package httputil writes the JSON envelopes shared by the campaign API and
// the HTML pages served to contacts from tracking links.
//
// Every error body is an ErrorResponse. InternalError logs the cause and
// sends the client a generic message.
package httputil
