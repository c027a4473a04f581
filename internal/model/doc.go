// Package model defines the entities shared by every pipeline stage: sources
// and their sentences, canonical steps and subgoals, alignment records,
// notables, hooks, and the typed warnings stages return alongside results.
//
// Collections are initialized per instance by constructors; JSON tags match
// the persisted artifact layout.
package model
