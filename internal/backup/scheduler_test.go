package backup

import "testing"

func TestAddJobRejectsInvalidCronExpr(t *testing.T) {
	s := NewScheduler()
	_, err := s.AddJob(ScheduledJob{Name: "bad", CronExpr: "not a cron expression"})
	if err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
}

func TestAddJobAcceptsValidCronExpr(t *testing.T) {
	s := NewScheduler()
	id, err := s.AddJob(ScheduledJob{Name: "nightly", CronExpr: "@every 1h", Pipeline: Pipeline{}})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if id == 0 {
		t.Error("expected a non-zero cron.EntryID")
	}

	s.Start()
	s.Stop()
}

func TestAddJobAcceptsNameWithNewlines(t *testing.T) {
	s := NewScheduler()
	if _, err := s.AddJob(ScheduledJob{Name: "job\nwith\nnewlines", CronExpr: "@every 1h"}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
}
