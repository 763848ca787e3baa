// Package model defines the core data structures used throughout AnonymityEngine.
//
// This package contains the following main types:
//   - ExitAddress: An immutable, validated external address observed through Tor
//   - AttemptResult: The transient record of one rotation tick
//   - Outcome: Classification of a rotation tick
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (ipcheck, rotation, report) need to use these
// types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output.
package model
