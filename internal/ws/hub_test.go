package ws

import "testing"

func TestParseChannelAcceptsKnownKinds(t *testing.T) {
	cases := []struct {
		channel string
		kind    ChannelKind
		id      string
	}{
		{"course:c1", ChannelCourse, "c1"},
		{"course_content:cc1", ChannelCourseContent, "cc1"},
		{"submission_group:sg1", ChannelSubmissionGroup, "sg1"},
	}

	for _, tc := range cases {
		kind, id, err := parseChannel(tc.channel)
		if err != nil {
			t.Fatalf("parseChannel(%q): unexpected error: %v", tc.channel, err)
		}
		if kind != tc.kind || id != tc.id {
			t.Fatalf("parseChannel(%q) = (%q, %q), want (%q, %q)", tc.channel, kind, id, tc.kind, tc.id)
		}
	}
}

func TestParseChannelRejectsUnknownKind(t *testing.T) {
	if _, _, err := parseChannel("bogus:1"); err == nil {
		t.Fatal("expected error for unknown channel kind")
	}
}

func TestParseChannelRejectsMissingID(t *testing.T) {
	if _, _, err := parseChannel("course"); err == nil {
		t.Fatal("expected error for missing id")
	}
}
