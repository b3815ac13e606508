package model

import "time"

// Problem is read-only to this core; management lives in the admin flows.
type Problem struct {
	ProblemID string
	Title     string
	ContestID string // empty for practice problems
}

// Testcase is a canonical (input, expected output) pair of a problem.
// The paths address objects in the testcase bucket.
type Testcase struct {
	TestcaseID         string
	ProblemID          string
	InputPath          string
	ExpectedOutputPath string
	IsExample          bool
}

// Contest gates submissions on its start time. Lifecycle transitions are
// owned by the scheduler subsystem, not this core.
type Contest struct {
	ContestID string
	Title     string
	StartTime time.Time
	EndTime   time.Time
}
