// Package intent holds the data model shared by every stage of the
// orchestration pipeline: parsed intents, risk-tagged tasks, plans and the
// caller supplied conditions that policy and routing evaluate.
package intent
