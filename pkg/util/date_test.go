package util

import (
    "strconv"
    "testing"
    "time"
)

func TestParseTimeRFC3339(t *testing.T) {
    s := "2024-10-10T10:10:10Z"
    got, ok := ParseTime(s)
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.UTC().Format(time.RFC3339) != s {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimeUnix(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
    got, ok := ParseTime(strconv.FormatInt(ts, 10))
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Unix() != ts {
        t.Fatalf("unexpected unix %v", got.Unix())
    }
}

func TestParseTimeDefault(t *testing.T) {
    def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
    got := ParseTimeDefault("", def)
    if !got.Equal(def) {
        t.Fatalf("expected default")
    }
}

func TestAlignFromTo15m(t *testing.T) {
    from := time.Date(2024, 10, 10, 10, 7, 33, 0, time.UTC)
    to := time.Date(2024, 10, 10, 11, 59, 59, 0, time.UTC)
    gotFrom, gotTo := AlignFromTo(from, to, "15m")
    if !gotFrom.Equal(time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)) {
        t.Fatalf("unexpected from %v", gotFrom)
    }
    if !gotTo.Equal(time.Date(2024, 10, 10, 11, 45, 0, 0, time.UTC)) {
        t.Fatalf("unexpected to %v", gotTo)
    }
}

func TestTimeBucket(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 42, 0, time.UTC)
    got := TimeBucket(ts, time.Minute)
    want := time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC).Unix()
    if got != want {
        t.Fatalf("expected %d, got %d", want, got)
    }
    // same bucket for every instant inside the minute
    if TimeBucket(ts.Add(17*time.Second), time.Minute) != got {
        t.Fatalf("expected stable bucket within minute")
    }
    // zero granularity falls back to one minute
    if TimeBucket(ts, 0) != got {
        t.Fatalf("expected minute fallback")
    }
}