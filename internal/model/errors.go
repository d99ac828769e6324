package model

import "errors"

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNoNotificationsFound = errors.New("no notifications found")
	ErrEntryNotFound        = errors.New("queue entry not found")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrTemplateNotFound     = errors.New("template not found")

	// ErrClaimConflict means another worker claimed the entry first. Callers skip it.
	ErrClaimConflict = errors.New("queue entry already claimed")

	ErrNotCancelable     = errors.New("notification cannot be cancelled")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrValidation marks a producer request the engine refuses to accept.
var ErrValidation = errors.New("invalid request")
