// Package campaign implements the campaign store and its state machine.
//
// The service owns every lifecycle transition:
//
//	DRAFT ─schedule→ SCHEDULED ─dispatch→ SENDING ─complete→ SENT
//	DRAFT ─send now→ SENDING
//	SCHEDULED | SENDING ─cancel→ CANCELLED
//
// All other edges are rejected with ErrInvalidState. Transitions are applied
// by the repository as conditional updates (status must still be one of the
// expected values), so a cancel racing a scheduler tick cannot be lost.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
