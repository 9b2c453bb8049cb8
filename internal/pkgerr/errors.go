// Package pkgerr carries the failure taxonomy of the packaging pipeline.
// Every component attaches a Kind at the fault site; layers above pass
// errors through unchanged.
package pkgerr

import (
	"errors"
	"fmt"
)

// Kind identifies a failure family.
type Kind string

const (
	// InvalidConfig marks a structural violation in the packaging config.
	InvalidConfig Kind = "invalid_config"
	// InvalidManifest marks a manifest rejected locally or by the platform.
	InvalidManifest Kind = "invalid_manifest"
	// RequestFailed marks a transport fault during remote manifest validation.
	RequestFailed Kind = "request_failed"
	// ImageNotFound marks a missing base image where presence was assumed.
	ImageNotFound Kind = "image_not_found"
	// ImagePullFailed marks an engine fault while pulling the base image.
	ImagePullFailed Kind = "image_pull_failed"
	// BuildFailed marks an engine fault or a missing success marker during build.
	BuildFailed Kind = "build_failed"
	// ContainerFault marks an ephemeral container that exited abnormally.
	ContainerFault Kind = "container_fault"
	// EngineFault marks any other image-engine-reported error.
	EngineFault Kind = "engine_fault"
)

// Error is a kind-tagged error with a message payload and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a kind-tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a kind-tagged error wrapping err with a formatted message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind carried by err, or "" if err is untagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
