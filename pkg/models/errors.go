package models

import "errors"

// Error taxonomy shared by all components. Wrap with fmt.Errorf("%w: ...")
// and match with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrProvider         = errors.New("provider error")
	ErrIO               = errors.New("io error")
	ErrPermissionDenied = errors.New("permission denied")
)
