// Package api exposes intent submission, confirmation, event tails, approval
// management and the provider directory over a versioned REST surface.
package api
