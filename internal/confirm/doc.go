// Package confirm resolves intents that the router refuses to run without
// explicit user confirmation. A Prompter supplies the answers; the console
// uses LinePrompter and the daemon replays stored answers through
// ScriptedPrompter.
package confirm
