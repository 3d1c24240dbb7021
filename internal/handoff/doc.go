// Package handoff delegates an intent to a single capability provider and,
// when that provider reports an unmet precondition naming a helper, runs the
// helper first.
package handoff
