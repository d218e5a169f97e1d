package models

import "errors"

// Unique-key violations reported by the student store.
var (
	ErrDuplicateCURP             = errors.New("curp already registered")
	ErrDuplicateRegistrationCode = errors.New("registration code already assigned")
)
