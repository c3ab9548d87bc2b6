// Package suppression implements the contact suppression list and the
// unsubscribe tokens that feed it.
//
// A contact with an active suppression on a channel is never part of an
// audience for that channel. Suppressions flow in from unsubscribe links,
// admin actions and bounces, and are checked by the audience resolver
// before every dispatch.
//
// Unsubscribe tokens are opaque random strings. They are verified by exact
// lookup only and carry no decodable payload.
//
// The service layer contains pure business logic and depends on the
// interfaces defined in repository.go. It never imports net/http or
// database/sql directly.
package suppression
