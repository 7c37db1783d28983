// Package audit records the capability lifecycle: grants issued, renewed,
// revoked, validation outcomes, admission decisions, and guest writes.
//
// Events never carry full access codes or share keys. Only the display
// prefix (enough to correlate, not enough to use) is stored, because the
// audit table has a longer retention and wider read access than the
// capability tables themselves.
package audit
