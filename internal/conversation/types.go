// Package conversation linearizes recorded turns into model context.
package conversation

// MaxTurns bounds how many prior turns are visible to the model.
const MaxTurns = 12

// Turn is the slice of a recorded interaction the context needs.
type Turn struct {
	Message string
	Reply   string
}
