package consistency

import "errors"

var (
	// ErrLocked is returned by every mutator once the set is locked.
	ErrLocked             = errors.New("consistency profiles are locked")
	ErrMissingMasterImage = errors.New("profile has no master image")
	ErrMasterImageSet     = errors.New("master image already set")
	ErrUnknownProfile     = errors.New("unknown profile")
	ErrNotAnalyzed        = errors.New("script has not been analyzed")
	ErrEmptyName          = errors.New("profile name is empty")
)
