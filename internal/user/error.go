package user

import "errors"

var (
	// -- Authentication/Authorization --
	ErrInvalidCredentials = errors.New("invalid username or password")

	// -- Validation & Input --
	ErrInvalidInput = errors.New("username and password are required")

	// -- Resource State --
	ErrUsernameExists = errors.New("username already taken")
	ErrUserNotFound   = errors.New("user not found")
	ErrAlreadyAdmin   = errors.New("user is already an admin")

	// -- Constants (External Systems) --
	PgUniqueViolation = "23505"
)
