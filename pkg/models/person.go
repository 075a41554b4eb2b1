package models

import "fmt"

// PersonRecord is one normalized person row of a record set.
// Empty strings mean unknown. ID is the record's index in its owning set.
type PersonRecord struct {
	ID             int    `json:"id"`
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	DateOfBirth    string `json:"date_of_birth"`
	Birthplace     string `json:"birthplace"`
	ExternalNumber string `json:"external_number"`
}

// Row is a raw tabular record keyed by source column name (strGName, strLName, ...)
type Row map[string]string

// Get returns the value of a column, or "" when the column is absent
func (r Row) Get(column string) string {
	if column == "" {
		return ""
	}
	return r[column]
}

// ValidateRecordSet checks that every record's ID equals its position in the slice
func ValidateRecordSet(records []PersonRecord) error {
	for i, r := range records {
		if r.ID != i {
			return fmt.Errorf("record at position %d has id %d: %w", i, r.ID, ErrRecordIDMismatch)
		}
	}
	return nil
}
