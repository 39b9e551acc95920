package service_test

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeClock advances one second per reading so every timestamp is distinct.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	svc   *service.TicketService
	db    *gorm.DB
	clock *fakeClock

	admin   model.User
	client  model.User
	client2 model.User
	tech    model.User
	tech2   model.User
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.User{}, &model.Ticket{}, &model.TicketLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func setup(t *testing.T) *fixture {
	return setupWith(t, service.Options{ClientOnlyCreate: true})
}

func setupWith(t *testing.T, opts service.Options) *fixture {
	t.Helper()

	db := openDB(t)
	clock := newFakeClock()
	opts.Clock = clock.Now

	f := &fixture{
		svc:   service.NewTicketService(db, opts),
		db:    db,
		clock: clock,
	}
	f.admin = mkUser(t, db, "Ada Admin", "ada@example.com", model.RoleAdmin)
	f.client = mkUser(t, db, "Carla Client", "carla@example.com", model.RoleCliente)
	f.client2 = mkUser(t, db, "Cid Client", "cid@example.com", model.RoleCliente)
	f.tech = mkUser(t, db, "Tomas Tech", "tomas@example.com", model.RoleTecnico)
	f.tech2 = mkUser(t, db, "Tina Tech", "tina@example.com", model.RoleTecnico)
	return f
}

func mkUser(t *testing.T, db *gorm.DB, name, email string, role model.Role) model.User {
	t.Helper()
	u := model.User{Name: name, Email: email, Role: role}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func (f *fixture) open(t *testing.T, by model.User, subject string) *model.Ticket {
	t.Helper()
	tk, err := f.svc.Create(t.Context(), by.Actor(), service.CreateInput{
		Subject:     subject,
		Description: "Something is not working as expected.",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return tk
}

func (f *fixture) claimed(t *testing.T, by, tech model.User, subject string) *model.Ticket {
	t.Helper()
	tk := f.open(t, by, subject)
	got, ok, err := f.svc.Claim(t.Context(), tech.Actor(), tk.ID)
	if err != nil || !ok {
		t.Fatalf("claim ticket: ok=%v err=%v", ok, err)
	}
	return got
}

func (f *fixture) reload(t *testing.T, id uint64) model.Ticket {
	t.Helper()
	var tk model.Ticket
	if err := f.db.First(&tk, id).Error; err != nil {
		t.Fatalf("reload ticket %d: %v", id, err)
	}
	return tk
}

func (f *fixture) logs(t *testing.T, id uint64) []model.TicketLog {
	t.Helper()
	var out []model.TicketLog
	if err := f.db.Where("ticket_id = ?", id).Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	return out
}

// checkClosedAt asserts closed implies closed_at; reopening keeps the stamp
// (DESIGN.md open question decision 6), so the converse is not checked.
func checkClosedAt(t *testing.T, tk model.Ticket) {
	t.Helper()
	if tk.Status == model.TicketStatusClosed && tk.ClosedAt == nil {
		t.Fatalf("ticket %d is closed but closed_at is nil", tk.ID)
	}
}

func ptr(v uint64) *uint64 { return &v }

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
