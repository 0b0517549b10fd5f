package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-consent-bot/internal/domain"
)

func (f *fixture) sweep(t *testing.T) SweepReport {
	t.Helper()
	rep, err := f.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	return rep
}

func TestSweeper_QuietSessionUntouched(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	f.rec.Reset()

	f.clock.Advance(DefaultWarnAfter)
	rep := f.sweep(t)
	if rep.Scanned != 1 || rep.Warned != 0 || rep.Abandoned != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(f.rec.Sent()) != 0 {
		t.Fatalf("nothing should be sent at exactly WarnAfter")
	}
}

func TestSweeper_WarnsOnce(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	started := f.clock.Now()
	f.rec.Reset()

	f.clock.Advance(11 * time.Minute)
	rep := f.sweep(t)
	if rep.Warned != 1 {
		t.Fatalf("expected one warning, got %+v", rep)
	}
	want := warningText(DefaultGraceAfterWarning)
	if got := f.lastText(t, phone); got != want {
		t.Fatalf("warning text = %q", got)
	}

	s := f.activeSession(t, phone)
	if s.WarningSentAt == nil || !s.WarningSentAt.Equal(f.clock.Now()) {
		t.Fatalf("warning marker = %v", s.WarningSentAt)
	}
	if !s.LastActivityAt.Equal(started) {
		t.Fatalf("warning must not refresh activity: %v", s.LastActivityAt)
	}
	if s.CurrentState != domain.StateAwaitingConsent {
		t.Fatalf("warning must not change state, got %q", s.CurrentState)
	}

	f.clock.Advance(time.Minute)
	rep = f.sweep(t)
	if rep.Warned != 0 {
		t.Fatalf("second tick warned again: %+v", rep)
	}
	if n := countTexts(f.rec.Sent(), want); n != 1 {
		t.Fatalf("warning sent %d times", n)
	}
}

func TestSweeper_ReplyAfterWarningResetsEscalation(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	f.clock.Advance(11 * time.Minute)
	f.sweep(t)

	f.clock.Advance(time.Minute)
	f.say(t, phone, "aquí estoy")
	if s := f.activeSession(t, phone); s.WarningSentAt != nil {
		t.Fatalf("reply should clear the warning marker")
	}

	// Grace passes since the warning but not since the reply: no abandon.
	f.clock.Advance(5 * time.Minute)
	rep := f.sweep(t)
	if rep.Abandoned != 0 || rep.Warned != 0 {
		t.Fatalf("report = %+v", rep)
	}

	// A fresh silence starts a fresh escalation.
	f.clock.Advance(6 * time.Minute)
	if rep := f.sweep(t); rep.Warned != 1 {
		t.Fatalf("expected a new warning, got %+v", rep)
	}
}

func TestSweeper_RevivesStaleMarker(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	s := f.activeSession(t, phone)

	// Marker older than the last activity, as left by a racing reply.
	warned := f.clock.Now().Add(-time.Minute)
	f.db.Model(&domain.Session{}).Where("id = ?", s.ID).Update("warning_sent_at", warned)

	f.clock.Advance(30 * time.Second)
	rep := f.sweep(t)
	if rep.Revived != 1 {
		t.Fatalf("expected revive, got %+v", rep)
	}
	if got := f.session(t, s.ID); got.WarningSentAt != nil || got.Abandoned {
		t.Fatalf("session after revive: %+v", got)
	}
}

func TestSweeper_AbandonsAfterGrace(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	f.say(t, phone, "acepto")
	started := f.clock.Now()
	s := f.activeSession(t, phone)

	f.clock.Advance(11 * time.Minute)
	f.sweep(t)
	f.clock.Advance(DefaultGraceAfterWarning)
	rep := f.sweep(t)
	if rep.Abandoned != 1 {
		t.Fatalf("expected abandon, got %+v", rep)
	}

	got := f.session(t, s.ID)
	if !got.Active || !got.Abandoned || got.CurrentState != domain.StateAwaitingRating {
		t.Fatalf("abandoned session = %+v", got)
	}
	if got.WarningSentAt != nil {
		t.Fatalf("marker should be cleared on abandon")
	}
	if !got.LastActivityAt.Equal(started) {
		t.Fatalf("abandon must not refresh activity: %v", got.LastActivityAt)
	}
	if txt := f.lastText(t, phone); txt != textTimeoutClose {
		t.Fatalf("timeout text = %q", txt)
	}

	// Later ticks leave it alone.
	for i := 0; i < 3; i++ {
		f.clock.Advance(10 * time.Minute)
		if rep := f.sweep(t); rep.Skipped != 1 || rep.Abandoned != 0 || rep.Warned != 0 {
			t.Fatalf("tick %d report = %+v", i, rep)
		}
	}
	if n := countTexts(f.rec.Sent(), textTimeoutClose); n != 1 {
		t.Fatalf("timeout text sent %d times", n)
	}
}

func TestSweeper_NoCloseBeforeGraceFromWarning(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")

	// The sweeper was down: first tick sees 20 minutes of silence.
	f.clock.Advance(20 * time.Minute)
	if rep := f.sweep(t); rep.Warned != 1 {
		t.Fatalf("expected warning first, got %+v", rep)
	}
	f.clock.Advance(time.Minute)
	if rep := f.sweep(t); rep.Abandoned != 0 {
		t.Fatalf("abandoned before the grace elapsed: %+v", rep)
	}
	f.clock.Advance(2 * time.Minute)
	if rep := f.sweep(t); rep.Abandoned != 1 {
		t.Fatalf("expected abandon after grace, got %+v", rep)
	}
}

func TestSweeper_ReplyAfterAbandonEntersSurvey(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	f.say(t, phone, "acepto")
	f.clock.Advance(11 * time.Minute)
	f.sweep(t)
	f.clock.Advance(DefaultGraceAfterWarning)
	f.sweep(t)

	f.clock.Advance(time.Hour)
	f.say(t, phone, "sí")
	s := f.activeSession(t, phone)
	if s.CurrentState != domain.StateSurvey {
		t.Fatalf("state = %q; want encuesta_satisfaccion", s.CurrentState)
	}
	f.say(t, phone, "si")
	got := f.session(t, s.ID)
	if got.Active || got.Satisfaction == nil || *got.Satisfaction != domain.Satisfied {
		t.Fatalf("survey not completed: %+v", got)
	}
}

func TestSweeper_SkipsSessionsWithoutActivity(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	s := f.activeSession(t, phone)
	f.db.Model(&domain.Session{}).Where("id = ?", s.ID).Update("last_activity_at", nil)

	f.clock.Advance(time.Hour)
	rep := f.sweep(t)
	if rep.Scanned != 1 || rep.Skipped != 1 || rep.Warned != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestSweeper_ComparesInstantsAcrossZones(t *testing.T) {
	bogota := time.FixedZone("COT", -5*60*60)

	tests := []struct {
		name string
		ago  time.Duration
		warn bool
	}{
		{"recent", 5 * time.Minute, false},
		{"idle", 11 * time.Minute, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.say(t, phone, "hola")
			s := f.activeSession(t, phone)
			last := f.clock.Now().Add(-tc.ago).In(bogota)
			f.db.Model(&domain.Session{}).Where("id = ?", s.ID).Update("last_activity_at", last)

			rep := f.sweep(t)
			if (rep.Warned == 1) != tc.warn {
				t.Fatalf("warn = %v; want %v (report %+v)", rep.Warned == 1, tc.warn, rep)
			}
		})
	}
}

func TestSweeper_ClosedSessionsNotScanned(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	f.say(t, phone, "no acepto")

	f.clock.Advance(time.Hour)
	if rep := f.sweep(t); rep.Scanned != 0 {
		t.Fatalf("closed sessions scanned: %+v", rep)
	}
}

func TestSweeper_SendFailureKeepsMarker(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	f.rec.FailWith(errors.New("provider down"))

	f.clock.Advance(11 * time.Minute)
	rep := f.sweep(t)
	if rep.Warned != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if s := f.activeSession(t, phone); s.WarningSentAt == nil {
		t.Fatalf("marker should persist even when the send fails")
	}
}

func TestSweeper_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.sweeper.Sweep(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestSweeper_LosesRaceToReply(t *testing.T) {
	f := newFixture(t)
	f.say(t, phone, "hola")
	f.say(t, phone, "acepto")
	s := f.activeSession(t, phone)

	f.clock.Advance(11 * time.Minute)
	f.sweep(t)
	f.clock.Advance(DefaultGraceAfterWarning)
	sentBefore := len(f.rec.Sent())

	// A reply commits between the sweeper's read and its abandon write.
	fired := 0
	err := f.db.Callback().Update().Before("gorm:update").Register("test:reply_wins", func(tx *gorm.DB) {
		if fired > 0 || tx.Statement.Table != "sessions" {
			return
		}
		fired++
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE sessions SET version = version + 1, warning_sent_at = NULL WHERE id = ?", s.ID)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	rep := f.sweep(t)
	if fired != 1 {
		t.Fatalf("expected the conflicting write once, fired %d", fired)
	}
	if rep.Abandoned != 0 || rep.Skipped != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if n := len(f.rec.Sent()) - sentBefore; n != 0 {
		t.Fatalf("losing sweep must not send, sent %d", n)
	}
	if n := countTexts(f.rec.Sent(), textTimeoutClose); n != 0 {
		t.Fatalf("timeout text sent %d times", n)
	}
	got := f.session(t, s.ID)
	if got.Abandoned || got.CurrentState != domain.StateAccepted || !got.Active {
		t.Fatalf("session after lost race: %+v", got)
	}
}
