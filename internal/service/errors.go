package service

import "errors"

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrTenantActive    = errors.New("cannot purge the active tenant")
	ErrTenantNameEmpty = errors.New("tenant name is required")
	ErrInvalidPlan     = errors.New("invalid plan")
	ErrNotResolved     = errors.New("tenant not resolved")
	ErrOwnerOnly       = errors.New("operation requires owner mode")
	ErrTenantMismatch  = errors.New("record belongs to another tenant")
	ErrScopeChanged    = errors.New("active tenant changed")
	ErrRecordNotFound  = errors.New("record not found")
	ErrRecordExists    = errors.New("record already exists")
	ErrWrongCollection = errors.New("payload does not belong to collection")
	ErrEmptySale       = errors.New("sale has no items")
	ErrOffline         = errors.New("sync unavailable: offline or backend unreachable")
)
