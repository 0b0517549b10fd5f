package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-consent-bot/internal/channel"
	"github.com/tbourn/go-consent-bot/internal/domain"
	"github.com/tbourn/go-consent-bot/internal/repo"
)

var testDocs = []string{
	"https://luismolinatest.com/archivos/politica.pdf",
	"https://luismolinatest.com/archivos/anexo.pdf",
}

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeClock is a settable clock shared by engine and sweeper in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 10, 1, 14, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	db      *gorm.DB
	rec     *channel.Recorder
	clock   *fakeClock
	engine  *Engine
	sweeper *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	rec := channel.NewRecorder()
	clk := newClock()

	eng := NewEngine(db, rec, testDocs)
	eng.Now = clk.Now

	sw := NewSweeper(db, rec)
	sw.Now = clk.Now

	return &fixture{db: db, rec: rec, clock: clk, engine: eng, sweeper: sw}
}

func (f *fixture) say(t *testing.T, from, text string) {
	t.Helper()
	if err := f.engine.HandleIncoming(context.Background(), from, text); err != nil {
		t.Fatalf("HandleIncoming(%q, %q): %v", from, text, err)
	}
}

func (f *fixture) activeSession(t *testing.T, phone string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	u, err := repo.GetUserByPhone(ctx, f.db, phone)
	if err != nil {
		t.Fatalf("user %s: %v", phone, err)
	}
	s, err := repo.GetActiveSession(ctx, f.db, u.ID)
	if err != nil {
		t.Fatalf("active session for %s: %v", phone, err)
	}
	return s
}

func (f *fixture) session(t *testing.T, id string) *domain.Session {
	t.Helper()
	s, err := repo.GetSession(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("session %s: %v", id, err)
	}
	return s
}

func (f *fixture) messages(t *testing.T, sessionID string) []domain.Message {
	t.Helper()
	ms, err := repo.ListMessages(context.Background(), f.db, sessionID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return ms
}

// lastText returns the body of the last text payload sent to phone.
func (f *fixture) lastText(t *testing.T, phone string) string {
	t.Helper()
	sent := f.rec.SentTo(phone)
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Text != nil {
			return sent[i].Text.Body
		}
	}
	t.Fatalf("no text sent to %s", phone)
	return ""
}

func countTexts(ps []channel.Payload, body string) int {
	n := 0
	for _, p := range ps {
		if p.Text != nil && p.Text.Body == body {
			n++
		}
	}
	return n
}
