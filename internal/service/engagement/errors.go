package engagement

import "errors"

// Sentinel errors for the engagement service layer.
var (
	ErrUnknownTarget        = errors.New("recipient is not in the campaign targeting snapshot")
	ErrInvalidCampaignState = errors.New("campaign has not been launched")
	ErrInvalidKind          = errors.New("unknown event kind")
)
