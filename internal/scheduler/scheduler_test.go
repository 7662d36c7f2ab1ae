package scheduler

import (
	"strings"
	"testing"
	"time"

	"reaper/internal/model"
)

func TestCronSpec_Daily(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	spec, err := cronSpec(model.ScytheSchedule{Enabled: true, Interval: "daily", Time: "14:30"}, loc)
	if err != nil {
		t.Fatalf("cronSpec() error: %v", err)
	}
	want := "CRON_TZ=America/New_York 30 14 * * *"
	if spec != want {
		t.Errorf("cronSpec() = %q, want %q", spec, want)
	}
}

func TestCronSpec_Weekly(t *testing.T) {
	// Mon=0 in Scythe weekdays; cron wants Sun=0, so Mon,Wed,Fri (0,2,4) -> 1,3,5.
	spec, err := cronSpec(model.ScytheSchedule{Enabled: true, Interval: "weekly", Time: "09:00", Weekdays: []int{0, 2, 4}}, time.UTC)
	if err != nil {
		t.Fatalf("cronSpec() error: %v", err)
	}
	if !strings.HasSuffix(spec, "1,3,5") {
		t.Errorf("cronSpec() = %q, want weekday list suffix 1,3,5", spec)
	}
}

func TestCronSpec_WeeklyRequiresWeekdays(t *testing.T) {
	_, err := cronSpec(model.ScytheSchedule{Enabled: true, Interval: "weekly", Time: "09:00"}, time.UTC)
	if err == nil {
		t.Error("cronSpec() should reject a weekly schedule with no weekdays")
	}
}

func TestCronSpec_InvalidTime(t *testing.T) {
	_, err := cronSpec(model.ScytheSchedule{Enabled: true, Interval: "daily", Time: "25:99"}, time.UTC)
	if err == nil {
		t.Error("cronSpec() should reject a malformed time")
	}
}
