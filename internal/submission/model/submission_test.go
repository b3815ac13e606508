package model

import "testing"

func TestSubmissionStatusIsTerminal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status SubmissionStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusAccepted, true},
		{StatusRejected, true},
	}
	for _, tc := range cases {
		if got := tc.status.IsTerminal(); got != tc.want {
			t.Fatalf("%s.IsTerminal() = %t, want %t", tc.status, got, tc.want)
		}
	}
}
