package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a unique key collision, e.g. an already registered email.
var ErrDuplicate = errors.New("repository: duplicate")
