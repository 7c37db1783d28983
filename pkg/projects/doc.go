// Package projects is the contract with the application's project store.
//
// # Overview
//
// The collab service does not own project data; it authorizes access to it.
// This package exposes the narrow surface the authorities and the guest
// gateway need: ownership lookup (for the Forbidden check on owner
// mutations), a safe-subset project summary, and reads/writes of the
// sub-resources guests may touch (characters, locations, scenes).
//
// Every method takes the project id as an explicit parameter and every
// query it issues is keyed by that id. There is no "list across projects"
// operation on this surface at all, which is what makes the guest gateway's
// scoping structural rather than a runtime guard.
//
// Summary deliberately excludes owner identity, billing, and vendor fields;
// it is the only project-level shape guest responses may embed.
package projects
