package repository

import "github.com/pkg/errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrAlreadyLinked = errors.New("referral already linked")
	ErrSelfReferral  = errors.New("self referral")
)
