// Package guest is the unauthenticated access surface. A guest presents
// an opaque access code or share key; the gateway resolves it through
// the owning authority, collapses every denial into the same generic
// answer, and hands back a minimal grant bound to exactly one project.
//
// The project reader is constructed from that grant, so there is no code
// path from a guest request to another project's rows: the reader simply
// has no method that takes a foreign project id.
package guest
