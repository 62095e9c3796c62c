package models

import "time"

// SignatureRecord is one stored face signature joined with its owner.
type SignatureRecord struct {
	PersonID int64
	Vector   []float32
	Person   Person
}

// AttendanceRecord mirrors one durable attendance row: one per person per day.
type AttendanceRecord struct {
	ID              int64
	PersonID        int64
	Day             time.Time // date component only
	EntryTime       time.Time
	ExitTime        time.Time
	LastSeen        time.Time
	Present         bool
	DurationMinutes int
}
