package models

import "errors"

var (
	// ErrRecordIDMismatch is returned when a record's ID is not its index in the record set
	ErrRecordIDMismatch = errors.New("record id does not match its position")
	// ErrKnownClusterAsymmetric is returned when a known-cluster mapping is not symmetric or reflexive
	ErrKnownClusterAsymmetric = errors.New("known cluster mapping is not symmetric")
	// ErrKnownClusterOutOfRange is returned when a known-cluster mapping references an unknown record
	ErrKnownClusterOutOfRange = errors.New("known cluster references a record outside the set")
)
