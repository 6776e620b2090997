package template

import "errors"

// Sentinel errors for the template service layer.
var (
	ErrNotFound            = errors.New("template not found")
	ErrMissingField        = errors.New("template name, subject and body are required")
	ErrUndeclaredVariable  = errors.New("placeholder is not in the declared variable list")
	ErrUnsupportedSyntax   = errors.New("only flat {{variable}} placeholders are supported")
	ErrMissingVariable     = errors.New("no value supplied for placeholder")
	ErrTemplateInUse       = errors.New("template is referenced by a campaign")
	ErrInvalidVariableName = errors.New("invalid variable name")
	ErrUnsuppliedVariable  = errors.New("placeholder has no per-recipient value at delivery")
)
