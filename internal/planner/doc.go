// Package planner turns a recognised intent into an ordered list of tasks.
package planner
