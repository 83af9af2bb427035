package eventbus

import "github.com/google/uuid"

// GenerateUUID returns a random (version 4) UUID used for handler ids and
// reply addresses.
func GenerateUUID() string {
	return uuid.NewString()
}
