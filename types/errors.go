package types

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("concurrent update conflict")
	ErrAccessDenied       = errors.New("no active subscription")
	ErrMainAdminProtected = errors.New("main administrator cannot be modified")
	ErrBonusClaimed       = errors.New("bonus already claimed")
	ErrAlreadyReferred    = errors.New("user already has a referrer")
	ErrSelfReferral       = errors.New("user cannot refer themselves")
	ErrInvalidDuration    = errors.New("subscription duration must be positive or -1")
	ErrNotSubscribed      = errors.New("user is not subscribed to the bonus channel")
)
