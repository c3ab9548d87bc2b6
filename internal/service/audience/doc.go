// Package audience resolves campaign target criteria into contacts.
//
// Criteria are a tagged-predicate tree (all / any / not / match) checked
// against a fixed schema of contact fields before they are stored or run.
// Parse turns a domain.Criteria into a typed Node that every backend
// understands: the Postgres repository compiles it to SQL, the in-memory
// repository evaluates it with Node.Matches.
//
// Resolution always excludes contacts suppressed on the campaign channel
// and contacts without an address, orders by contact id and never returns
// the same contact twice.
package audience
