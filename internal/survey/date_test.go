package survey

import (
	"math"
	"testing"
)

func TestParseDate(t *testing.T) {
	// 2019-01-02 is MJD 58485; 15:27 adds 55620/86400 days
	got := ParseDate("2019-01-02T15:27Z")
	want := 58485.0 + 55620.0/86400.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestParseDate_SecondsIgnored(t *testing.T) {
	a := ParseDate("2019-01-02T15:27Z")
	b := ParseDate("2019-01-02T15:27:31Z")
	if a != b {
		t.Fatalf("seconds must be ignored: %v != %v", a, b)
	}
}

func TestParseDate_UnixEpoch(t *testing.T) {
	if got := ParseDate("1970-01-01T00:00Z"); got != 40587 {
		t.Fatalf("got=%v want 40587", got)
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, str := range []string{"", "garbage", "2019-01-02", "2019-01-02T15Z"} {
		if got := ParseDate(str); got != 0 {
			t.Fatalf("ParseDate(%q)=%v, want 0", str, got)
		}
	}
}
