package schema

import "errors"

var (
	// ErrCommandBusy indicates a command session is already running on the console.
	ErrCommandBusy = errors.New("command already running")
	// ErrConsoleClosed indicates the console has been closed.
	ErrConsoleClosed = errors.New("console is closed")
	// ErrEmptyCommand indicates the command argument vector was empty.
	ErrEmptyCommand = errors.New("empty command")
	// ErrNoCommandInput indicates no interactive command session accepts input.
	ErrNoCommandInput = errors.New("no interactive command session")
	// ErrContainerNotFound indicates the container does not exist.
	ErrContainerNotFound = errors.New("container not found")
	// ErrEngineUnavailable indicates no container engine endpoint responded.
	ErrEngineUnavailable = errors.New("container engine unavailable")
)
