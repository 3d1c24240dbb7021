// Package policy evaluates a planned task against caller-supplied runtime
// conditions. Rules are checked in a fixed order and the first failing rule
// decides the outcome; the engine keeps no state between calls.
package policy
