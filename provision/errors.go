package provision

import "errors"

var (
	// ErrStoreRequired is returned when a document store is not provided.
	ErrStoreRequired = errors.New("document store required")

	// ErrUnknownProfile is returned for an unrecognized provisioning profile.
	ErrUnknownProfile = errors.New("unknown provisioning profile")
)
