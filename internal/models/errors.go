package models

import "errors"

var (
	// ErrNotFound is returned by stores when the referenced conversation, message or prompt does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPromptNameTaken is returned by stores when a prompt is saved under a name another prompt already uses.
	ErrPromptNameTaken = errors.New("prompt with this name already exists")
)
