// Package router decides whether a planned intent can run as-is, needs
// explicit confirmation, or has nothing to run. When it can run, the tasks
// are ordered by provider priority with an optional preference boost.
package router
