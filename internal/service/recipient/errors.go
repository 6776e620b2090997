package recipient

import "errors"

// Sentinel errors for the recipient service layer.
var (
	ErrNotFound             = errors.New("recipient not found")
	ErrGroupNotFound        = errors.New("group not found")
	ErrDuplicateEmail       = errors.New("recipient email already exists")
	ErrDuplicateGroupName   = errors.New("group name already exists")
	ErrMissingRequiredField = errors.New("name and email are required")
	ErrReferencedByCampaign = errors.New("recipient is referenced by a campaign")
	ErrMissingHeader        = errors.New("import file is missing a required column")
	ErrMissingGroupName     = errors.New("group name is required")
)
