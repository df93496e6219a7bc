package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewIdentity(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		display string
		wantErr error
	}{
		{"ok", "alice", "Alice", nil},
		{"trimmed", "  bob ", " Bob ", nil},
		{"empty id", " ", "Bob", ErrIdentityIDEmpty},
		{"long id", strings.Repeat("x", MaxIdentityIDLen+1), "Bob", ErrIdentityIDTooLong},
		{"empty name", "bob", "", ErrDisplayNameEmpty},
		{"long name", "bob", strings.Repeat("я", MaxDisplayNameLen+1), ErrDisplayNameTooLong},
		{"unicode name at limit", "bob", strings.Repeat("я", MaxDisplayNameLen), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewIdentity(tc.id, tc.display)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v, want %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if string(got.ID) != strings.TrimSpace(tc.id) || got.DisplayName != strings.TrimSpace(tc.display) {
				t.Fatalf("got=%+v", got)
			}
			if got.InCall {
				t.Fatal("new identity must not be in call")
			}
		})
	}
}

func TestParseCallType(t *testing.T) {
	if ct, err := ParseCallType("video"); err != nil || ct != CallVideo {
		t.Fatalf("video: got=%v err=%v", ct, err)
	}
	if ct, err := ParseCallType(""); err != nil || ct != CallAudio {
		t.Fatalf("empty: got=%v err=%v", ct, err)
	}
	if _, err := ParseCallType("fax"); !errors.Is(err, ErrInvalidCallType) {
		t.Fatalf("fax: err=%v", err)
	}
}

func TestCallRecordDuration(t *testing.T) {
	start := time.Unix(100, 0)
	rec := CallRecord{StartedAt: start, EndedAt: start.Add(time.Minute)}
	if rec.Duration() != 0 {
		t.Fatalf("unanswered duration=%v", rec.Duration())
	}
	answered := start.Add(10 * time.Second)
	rec.AnsweredAt = &answered
	if rec.Duration() != 50*time.Second {
		t.Fatalf("duration=%v", rec.Duration())
	}
}
