// Package model defines the author-produced form configuration consumed by the
// runtime: ordered steps, each holding ordered fields with a type, required
// flag, option list and an optional visibility rule. The model is plain data;
// behaviour lives in the visibility, hydrate, runtime, schedule and authoring
// packages.
//
// Field ids are flat keys shared across all steps, so the FormValues map and
// the ValidationErrors map are keyed by field id rather than by step. Entity
// bound fields (service, practitioner, doctor and schedule selections) treat an
// empty Options slice as "use every live entity" instead of "no choices".
//
// Decode accepts JSON or YAML and normalises the legacy single-list shape
// (a top-level `fields` array without steps) into one synthetic step.
package model
