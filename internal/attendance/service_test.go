package attendance

import (
    "errors"
    "fmt"
    "strings"
    "sync"
    "testing"
    "time"

    "gorm.io/driver/sqlite"
    "gorm.io/gorm"
    "gorm.io/gorm/logger"

    "github.com/ucampus/attendance_backend/internal/database"
    "github.com/ucampus/attendance_backend/internal/models"
)

type fakeClock struct {
    mu  sync.Mutex
    now time.Time
}

func (c *fakeClock) Now() time.Time {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.now = c.now.Add(d)
}

func testDB(t *testing.T) *gorm.DB {
    t.Helper()
    dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
    db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
        TranslateError: true,
        Logger:         logger.Default.LogMode(logger.Silent),
    })
    if err != nil {
        t.Fatalf("open test db: %v", err)
    }
    if err := database.Migrate(db); err != nil {
        t.Fatalf("migrate test db: %v", err)
    }
    return db
}

// newTestService starts the clock at 07:00 UTC so window arithmetic in the
// tests reads like a timetable.
func newTestService(t *testing.T) (*Service, *fakeClock) {
    t.Helper()
    clock := &fakeClock{now: time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)}
    svc := NewService(testDB(t), AnomalyConfig{})
    svc.Now = clock.Now
    return svc, clock
}

func createEnvironment(t *testing.T, db *gorm.DB, name string) *models.Environment {
    t.Helper()
    env := &models.Environment{Name: name, Type: "LAB", Location: "Building A", Capacity: 30, Active: true}
    if err := db.Create(env).Error; err != nil {
        t.Fatalf("create environment: %v", err)
    }
    return env
}

func createUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
    t.Helper()
    u := &models.User{Username: username, Name: username, Role: role, Active: true}
    if err := db.Create(u).Error; err != nil {
        t.Fatalf("create user %s: %v", username, err)
    }
    return u
}

func createTestSession(t *testing.T, svc *Service, env *models.Environment, host *models.User, start, end time.Time) *models.Session {
    t.Helper()
    session, err := svc.CreateSession(CreateSessionInput{
        EnvironmentID: env.ID,
        Name:          "Morning Lab",
        Type:          models.SessionTypeClass,
        HostID:        &host.ID,
        StartTime:     start,
        EndTime:       end,
    })
    if err != nil {
        t.Fatalf("create session: %v", err)
    }
    return session
}

func TestCreateSessionOverlap(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    hostA := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    hostB := createUser(t, svc.DB, "docente.b", models.RoleDocente)

    day := clock.Now().Truncate(24 * time.Hour)
    createTestSession(t, svc, env, hostA, day.Add(7*time.Hour), day.Add(13*time.Hour))

    // Overlapping slot in the same environment is refused.
    _, err := svc.CreateSession(CreateSessionInput{
        EnvironmentID: env.ID,
        Name:          "Clashing Lecture",
        Type:          models.SessionTypeClass,
        HostID:        &hostB.ID,
        StartTime:     day.Add(12 * time.Hour),
        EndTime:       day.Add(14 * time.Hour),
    })
    if !errors.Is(err, ErrConflict) {
        t.Fatalf("expected ErrConflict, got %v", err)
    }

    // Back-to-back is allowed: intervals are half-open.
    if _, err := svc.CreateSession(CreateSessionInput{
        EnvironmentID: env.ID,
        Name:          "Afternoon Lab",
        Type:          models.SessionTypeClass,
        HostID:        &hostB.ID,
        StartTime:     day.Add(13 * time.Hour),
        EndTime:       day.Add(15 * time.Hour),
    }); err != nil {
        t.Fatalf("adjacent session should be accepted, got %v", err)
    }

    // A different environment ignores the first booking entirely.
    other := createEnvironment(t, svc.DB, "LAB-02")
    if _, err := svc.CreateSession(CreateSessionInput{
        EnvironmentID: other.ID,
        Name:          "Parallel Class",
        Type:          models.SessionTypeClass,
        HostID:        &hostB.ID,
        StartTime:     day.Add(7 * time.Hour),
        EndTime:       day.Add(13 * time.Hour),
    }); err != nil {
        t.Fatalf("other environment should not conflict, got %v", err)
    }
}

func TestCreateSessionValidation(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    now := clock.Now()

    base := CreateSessionInput{
        EnvironmentID: env.ID,
        Name:          "Lab",
        Type:          models.SessionTypeClass,
        HostID:        &host.ID,
        StartTime:     now,
        EndTime:       now.Add(2 * time.Hour),
    }

    tests := []struct {
        name   string
        mutate func(*CreateSessionInput)
    }{
        {"empty name", func(in *CreateSessionInput) { in.Name = "" }},
        {"invalid type", func(in *CreateSessionInput) { in.Type = "SEMINAR" }},
        {"start after end", func(in *CreateSessionInput) { in.StartTime = in.EndTime.Add(time.Hour) }},
        {"start equals end", func(in *CreateSessionInput) { in.StartTime = in.EndTime }},
        {"no host no externals", func(in *CreateSessionInput) { in.HostID = nil }},
        {"rotation too long", func(in *CreateSessionInput) { in.QRRotationMinutes = 31 }},
        {"rotation negative", func(in *CreateSessionInput) { in.QRRotationMinutes = -1 }},
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            in := base
            tc.mutate(&in)
            _, err := svc.CreateSession(in)
            var vErr *ValidationError
            if !errors.As(err, &vErr) {
                t.Fatalf("expected validation error, got %v", err)
            }
        })
    }

    // Unknown environment is a lookup failure, not a validation one.
    in := base
    in.EnvironmentID = "00000000-0000-0000-0000-000000000000"
    if _, err := svc.CreateSession(in); !errors.Is(err, ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
}

func TestCreateSessionIssuesInitialCode(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)

    start := clock.Now()
    end := start.Add(6 * time.Hour)
    session := createTestSession(t, svc, env, host, start, end)

    if session.CurrentQRCode == nil || *session.CurrentQRCode == "" {
        t.Fatal("new session should carry a current code")
    }
    var qr models.QRCode
    if err := svc.DB.Where("session_id = ?", session.ID).First(&qr).Error; err != nil {
        t.Fatalf("initial code row missing: %v", err)
    }
    if qr.Code != *session.CurrentQRCode {
        t.Error("code row does not match current code")
    }
    if !qr.ValidUntil.Equal(session.EndTime) {
        t.Errorf("initial code should stay valid until session end, got %v", qr.ValidUntil)
    }
}

func TestGetOrRotateCode(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(6*time.Hour))
    initial := *session.CurrentQRCode

    // Within the interval the same code is answered every time.
    for i := 0; i < 3; i++ {
        issue, err := svc.GetOrRotateCode(session.ID, false, *host)
        if err != nil {
            t.Fatalf("get code: %v", err)
        }
        if issue.Rotated || issue.Code != initial {
            t.Fatalf("expected current code %q unrotated, got %q rotated=%v", initial, issue.Code, issue.Rotated)
        }
    }

    // Once the interval elapses the next request rotates.
    clock.Advance(3 * time.Minute)
    issue, err := svc.GetOrRotateCode(session.ID, false, *host)
    if err != nil {
        t.Fatalf("rotate: %v", err)
    }
    if !issue.Rotated || issue.Code == initial {
        t.Fatalf("expected a fresh code, got %q rotated=%v", issue.Code, issue.Rotated)
    }
    if want := clock.Now().Add(3 * time.Minute); !issue.ValidUntil.Equal(want) {
        t.Errorf("valid_until = %v, want %v", issue.ValidUntil, want)
    }

    // Rotation history keeps every issued code.
    var codes int64
    svc.DB.Model(&models.QRCode{}).Where("session_id = ?", session.ID).Count(&codes)
    if codes != 2 {
        t.Errorf("expected 2 code rows, got %d", codes)
    }
}

func TestGetOrRotateCodeForceNew(t *testing.T) {
    svc, _ := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    session := createTestSession(t, svc, env, host, svc.clock(), svc.clock().Add(6*time.Hour))
    initial := *session.CurrentQRCode

    issue, err := svc.GetOrRotateCode(session.ID, true, *host)
    if err != nil {
        t.Fatalf("force rotate: %v", err)
    }
    if !issue.Rotated || issue.Code == initial {
        t.Fatal("force_new should rotate even inside the interval")
    }
}

func TestGetOrRotateCodeAuthz(t *testing.T) {
    svc, _ := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    other := createUser(t, svc.DB, "docente.b", models.RoleDocente)
    admin := createUser(t, svc.DB, "admin", models.RoleAdmin)
    session := createTestSession(t, svc, env, host, svc.clock(), svc.clock().Add(time.Hour))

    if _, err := svc.GetOrRotateCode(session.ID, false, *other); !errors.Is(err, ErrForbidden) {
        t.Fatalf("non-host should be refused, got %v", err)
    }
    if _, err := svc.GetOrRotateCode(session.ID, false, *admin); err != nil {
        t.Fatalf("admin should pass, got %v", err)
    }
}

func TestGetOrRotateCodeInactiveSession(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(time.Hour))

    // Past the end time the session is implicitly over, flag or not.
    clock.Advance(2 * time.Hour)
    if _, err := svc.GetOrRotateCode(session.ID, false, *host); !errors.Is(err, ErrSessionInactive) {
        t.Fatalf("expected ErrSessionInactive after end time, got %v", err)
    }
}

// Two rotation requests racing for the same epoch: the compare-and-swap
// lets one land and the other adopts the winning code unchanged.
func TestGetOrRotateCodeLoserAdoptsWinner(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    day := clock.Now()
    session := createTestSession(t, svc, env, host, day, day.Add(6*time.Hour))

    // Snapshot the pre-rotation state, as a second request would hold it
    // after loading the session.
    stale := *session

    clock.Advance(3 * time.Minute)
    winner, err := svc.GetOrRotateCode(session.ID, false, *host)
    if err != nil {
        t.Fatalf("winning rotation: %v", err)
    }
    if !winner.Rotated {
        t.Fatal("expected the first rotation to land")
    }

    loser, err := svc.rotateIfDue(&stale, true, clock.Now())
    if err != nil {
        t.Fatalf("losing rotation: %v", err)
    }
    if loser.Rotated {
        t.Error("loser claims to have rotated")
    }
    if loser.Code != winner.Code {
        t.Errorf("loser code = %q, want winner's %q", loser.Code, winner.Code)
    }
    if !loser.ValidUntil.Equal(winner.ValidUntil) {
        t.Errorf("loser valid until = %v, want %v", loser.ValidUntil, winner.ValidUntil)
    }

    // Initial code plus the winning rotation; the loser added nothing.
    var history int64
    svc.DB.Model(&models.QRCode{}).Where("session_id = ?", session.ID).Count(&history)
    if history != 2 {
        t.Fatalf("qr history rows = %d, want 2", history)
    }
}

func TestMarkAttendanceLifecycle(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    student := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(6*time.Hour))
    code := *session.CurrentQRCode
    origin := Origin{IPAddress: "10.0.0.5", DeviceInfo: "android"}

    clock.Advance(time.Minute)
    res, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), origin)
    if err != nil {
        t.Fatalf("check-in: %v", err)
    }
    if res.Type != MarkCheckIn {
        t.Fatalf("first scan should check in, got %s", res.Type)
    }
    if !res.Attendance.CheckInTime.Equal(clock.Now()) {
        t.Errorf("check-in time = %v, want %v", res.Attendance.CheckInTime, clock.Now())
    }

    clock.Advance(3 * time.Minute)
    res, err = svc.MarkAttendance(code, RegisteredAttendee(student.ID), origin)
    if err != nil {
        t.Fatalf("check-out: %v", err)
    }
    if res.Type != MarkCheckOut {
        t.Fatalf("second scan should check out, got %s", res.Type)
    }
    if res.Attendance.CheckOutTime == nil {
        t.Fatal("check-out time not recorded")
    }
    if got := res.Attendance.CheckOutTime.Sub(res.Attendance.CheckInTime); got != 3*time.Minute {
        t.Errorf("presence duration = %v, want 3m", got)
    }

    _, err = svc.MarkAttendance(code, RegisteredAttendee(student.ID), origin)
    if !errors.Is(err, ErrAlreadyCompleted) {
        t.Fatalf("third scan should be rejected, got %v", err)
    }
}

// TestMarkAttendanceInsertRace replays losing the insert to a concurrent
// scan by the same attendee: the duplicate check misses the row another
// request commits just before our insert, the unique index rejects the
// insert, and the scan still resolves as the check-out it would have been.
func TestMarkAttendanceInsertRace(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    day := clock.Now()
    session := createTestSession(t, svc, env, host, day, day.Add(6*time.Hour))
    code := *session.CurrentQRCode
    student := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)

    winning := models.Attendance{
        SessionID:   session.ID,
        UserID:      &student.ID,
        CheckInTime: clock.Now(),
        IPAddress:   "10.0.0.1",
    }
    if err := svc.DB.Create(&winning).Error; err != nil {
        t.Fatalf("seed winning scan: %v", err)
    }

    // Hide the winning row from the first duplicate check only, like a
    // row committed between our read and our write.
    hidden := false
    err := svc.DB.Callback().Query().Before("gorm:query").Register("race_window", func(d *gorm.DB) {
        if hidden {
            return
        }
        if _, ok := d.Statement.Dest.(*models.Attendance); !ok {
            return
        }
        hidden = true
        d.AddError(gorm.ErrRecordNotFound)
    })
    if err != nil {
        t.Fatalf("register callback: %v", err)
    }

    clock.Advance(2 * time.Minute)
    res, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), Origin{IPAddress: "10.0.0.1"})
    if err != nil {
        t.Fatalf("losing scan: %v", err)
    }
    if res.Type != MarkCheckOut {
        t.Fatalf("result type = %q, want %q", res.Type, MarkCheckOut)
    }
    if res.Attendance.ID != winning.ID {
        t.Errorf("resolved against attendance %s, want the winning row %s", res.Attendance.ID, winning.ID)
    }
    if res.Attendance.CheckOutTime == nil || !res.Attendance.CheckOutTime.Equal(clock.Now()) {
        t.Errorf("check-out time = %v, want %v", res.Attendance.CheckOutTime, clock.Now())
    }

    var count int64
    svc.DB.Model(&models.Attendance{}).Where("session_id = ?", session.ID).Count(&count)
    if count != 1 {
        t.Fatalf("attendance rows = %d, want 1", count)
    }
}

func TestMarkAttendanceRejections(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    student := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)
    start := clock.Now().Add(time.Hour)
    session := createTestSession(t, svc, env, host, start, start.Add(2*time.Hour))
    code := *session.CurrentQRCode
    origin := Origin{IPAddress: "10.0.0.5"}

    if _, err := svc.MarkAttendance("NOSUCHCODE", RegisteredAttendee(student.ID), origin); !errors.Is(err, ErrInvalidCode) {
        t.Fatalf("unknown code: got %v, want ErrInvalidCode", err)
    }

    // Before the window opens.
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), origin); !errors.Is(err, ErrOutOfWindow) {
        t.Fatalf("early scan: got %v, want ErrOutOfWindow", err)
    }

    // After the window closes the persisted flag may still be true; the
    // scan is refused regardless.
    clock.Advance(4 * time.Hour)
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), origin); !errors.Is(err, ErrOutOfWindow) {
        t.Fatalf("late scan: got %v, want ErrOutOfWindow", err)
    }
}

func TestMarkAttendanceRotatedCode(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    student := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(6*time.Hour))
    stale := *session.CurrentQRCode

    clock.Advance(3 * time.Minute)
    issue, err := svc.GetOrRotateCode(session.ID, false, *host)
    if err != nil {
        t.Fatalf("rotate: %v", err)
    }

    // The superseded code is dead even though its validity window has not
    // elapsed on its own terms.
    _, err = svc.MarkAttendance(stale, RegisteredAttendee(student.ID), Origin{IPAddress: "10.0.0.5"})
    if !errors.Is(err, ErrCodeRotated) {
        t.Fatalf("stale code: got %v, want ErrCodeRotated", err)
    }

    if _, err := svc.MarkAttendance(issue.Code, RegisteredAttendee(student.ID), Origin{IPAddress: "10.0.0.5"}); err != nil {
        t.Fatalf("current code should be accepted: %v", err)
    }
}

func TestMarkAttendanceExternals(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "AUD-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)

    closed := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(2*time.Hour))

    open, err := svc.CreateSession(CreateSessionInput{
        EnvironmentID:  createEnvironment(t, svc.DB, "AUD-02").ID,
        Name:           "Open Conference",
        Type:           models.SessionTypeConference,
        HostID:         &host.ID,
        AllowExternals: true,
        StartTime:      clock.Now(),
        EndTime:        clock.Now().Add(2 * time.Hour),
    })
    if err != nil {
        t.Fatalf("create open session: %v", err)
    }

    visitor := &models.ExternalPerson{DNI: "70000001", FullName: "Visiting Scholar"}
    if err := svc.DB.Create(visitor).Error; err != nil {
        t.Fatalf("create external person: %v", err)
    }

    _, err = svc.MarkAttendance(*closed.CurrentQRCode, ExternalAttendee(visitor.ID), Origin{IPAddress: "10.0.0.9"})
    if !errors.Is(err, ErrExternalsNotAllowed) {
        t.Fatalf("closed session: got %v, want ErrExternalsNotAllowed", err)
    }

    res, err := svc.MarkAttendance(*open.CurrentQRCode, ExternalAttendee(visitor.ID), Origin{IPAddress: "10.0.0.9"})
    if err != nil {
        t.Fatalf("open session should accept externals: %v", err)
    }
    if res.Attendance.ExternalPersonID == nil || *res.Attendance.ExternalPersonID != visitor.ID {
        t.Error("attendance not bound to the external person")
    }
}

func TestAnomalySameIPFlagsThird(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(6*time.Hour))
    code := *session.CurrentQRCode
    sharedIP := Origin{IPAddress: "10.0.0.7"}

    for i, want := range []bool{false, false, true, true} {
        student := createUser(t, svc.DB, fmt.Sprintf("20211000%02d", i), models.RoleEstudiante)
        clock.Advance(5 * time.Second)
        res, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), sharedIP)
        if err != nil {
            t.Fatalf("check-in %d: %v", i+1, err)
        }
        if res.Attendance.IsSuspicious != want {
            t.Errorf("check-in %d suspicious = %v, want %v", i+1, res.Attendance.IsSuspicious, want)
        }
        if want && res.Warning == "" {
            t.Errorf("check-in %d should carry a warning", i+1)
        }
    }

    // Flagged scans are recorded and the host is told.
    var notifications int64
    svc.DB.Model(&models.Notification{}).Where("user_id = ? AND type = ?", host.ID, "SUSPICIOUS_ATTENDANCE").Count(&notifications)
    if notifications != 2 {
        t.Errorf("expected 2 host notifications, got %d", notifications)
    }

    // A different address is judged on its own history.
    outsider := createUser(t, svc.DB, "2021109999", models.RoleEstudiante)
    res, err := svc.MarkAttendance(code, RegisteredAttendee(outsider.ID), Origin{IPAddress: "10.0.0.200"})
    if err != nil {
        t.Fatalf("outsider check-in: %v", err)
    }
    if res.Attendance.IsSuspicious {
        t.Error("different address should not be flagged")
    }
}

func TestAnomalyWindowExpires(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(6*time.Hour))
    code := *session.CurrentQRCode
    sharedIP := Origin{IPAddress: "10.0.0.7"}

    for i := 0; i < 2; i++ {
        student := createUser(t, svc.DB, fmt.Sprintf("20211000%02d", i), models.RoleEstudiante)
        if _, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), sharedIP); err != nil {
            t.Fatalf("check-in %d: %v", i+1, err)
        }
    }

    // Outside the window the earlier scans no longer count.
    clock.Advance(2 * time.Minute)
    late := createUser(t, svc.DB, "2021100099", models.RoleEstudiante)
    res, err := svc.MarkAttendance(code, RegisteredAttendee(late.ID), sharedIP)
    if err != nil {
        t.Fatalf("late check-in: %v", err)
    }
    if res.Attendance.IsSuspicious {
        t.Error("scan outside the window should not be flagged")
    }
}

func TestCloseSessionChecksOutEveryone(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    day := clock.Now()
    session := createTestSession(t, svc, env, host, day, day.Add(6*time.Hour))
    code := *session.CurrentQRCode

    present := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)
    gone := createUser(t, svc.DB, "2021100002", models.RoleEstudiante)
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(present.ID), Origin{IPAddress: "10.0.0.1"}); err != nil {
        t.Fatalf("check-in: %v", err)
    }
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(gone.ID), Origin{IPAddress: "10.0.0.2"}); err != nil {
        t.Fatalf("check-in: %v", err)
    }
    clock.Advance(5 * time.Minute)
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(gone.ID), Origin{IPAddress: "10.0.0.2"}); err != nil {
        t.Fatalf("manual check-out: %v", err)
    }

    clock.Advance(5 * time.Minute)
    closedAt := clock.Now()
    closed, err := svc.CloseSession(session.ID, *host)
    if err != nil {
        t.Fatalf("close: %v", err)
    }
    if closed.IsActive {
        t.Error("closed session still flagged active")
    }
    if !closed.EndTime.Equal(closedAt) {
        t.Errorf("end time = %v, want closure time %v", closed.EndTime, closedAt)
    }

    var records []models.Attendance
    if err := svc.DB.Where("session_id = ?", session.ID).Find(&records).Error; err != nil {
        t.Fatalf("load attendances: %v", err)
    }
    for _, a := range records {
        if a.CheckOutTime == nil {
            t.Fatalf("attendee %v left without check-out after closure", a.UserID)
        }
    }
    // The manual check-out keeps its own stamp; only open rows get the
    // closure time.
    var manual models.Attendance
    svc.DB.Where("session_id = ? AND user_id = ?", session.ID, gone.ID).First(&manual)
    if manual.CheckOutTime.Equal(closedAt) {
        t.Error("manual check-out overwritten by closure")
    }

    if _, err := svc.MarkAttendance(code, RegisteredAttendee(present.ID), Origin{IPAddress: "10.0.0.1"}); !errors.Is(err, ErrSessionInactive) {
        t.Fatalf("scan after closure: got %v, want ErrSessionInactive", err)
    }
}

// Closing is terminal: retrying a close must not move the closure stamp
// or re-run the bulk check-out.
func TestCloseSessionTwice(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    day := clock.Now()
    session := createTestSession(t, svc, env, host, day, day.Add(6*time.Hour))
    code := *session.CurrentQRCode

    student := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), Origin{IPAddress: "10.0.0.1"}); err != nil {
        t.Fatalf("check-in: %v", err)
    }

    clock.Advance(10 * time.Minute)
    closedAt := clock.Now()
    if _, err := svc.CloseSession(session.ID, *host); err != nil {
        t.Fatalf("close: %v", err)
    }

    clock.Advance(30 * time.Minute)
    if _, err := svc.CloseSession(session.ID, *host); !errors.Is(err, ErrSessionInactive) {
        t.Fatalf("second close: got %v, want ErrSessionInactive", err)
    }

    // The first closure's timestamps survive the retry untouched.
    var reloaded models.Session
    if err := svc.DB.Where("id = ?", session.ID).First(&reloaded).Error; err != nil {
        t.Fatalf("reload session: %v", err)
    }
    if !reloaded.EndTime.Equal(closedAt) {
        t.Errorf("end time = %v, want first closure %v", reloaded.EndTime, closedAt)
    }
    var marked models.Attendance
    if err := svc.DB.Where("session_id = ? AND user_id = ?", session.ID, student.ID).First(&marked).Error; err != nil {
        t.Fatalf("reload attendance: %v", err)
    }
    if marked.CheckOutTime == nil || !marked.CheckOutTime.Equal(closedAt) {
        t.Errorf("check-out = %v, want closure stamp %v", marked.CheckOutTime, closedAt)
    }
}

func TestCloseSessionAuthz(t *testing.T) {
    svc, _ := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    other := createUser(t, svc.DB, "docente.b", models.RoleDocente)
    session := createTestSession(t, svc, env, host, svc.clock(), svc.clock().Add(time.Hour))

    if _, err := svc.CloseSession(session.ID, *other); !errors.Is(err, ErrForbidden) {
        t.Fatalf("non-host close: got %v, want ErrForbidden", err)
    }
}

func TestVerifyCode(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(6*time.Hour))
    code := *session.CurrentQRCode

    res, err := svc.VerifyCode(code)
    if err != nil {
        t.Fatalf("verify: %v", err)
    }
    if !res.Valid {
        t.Fatalf("fresh code should verify, reason: %s", res.Reason)
    }

    if _, err := svc.VerifyCode("NOSUCHCODE"); !errors.Is(err, ErrInvalidCode) {
        t.Fatalf("unknown code: got %v, want ErrInvalidCode", err)
    }

    // Rotated-away codes report the rotation, not a generic failure.
    clock.Advance(3 * time.Minute)
    if _, err := svc.GetOrRotateCode(session.ID, false, *host); err != nil {
        t.Fatalf("rotate: %v", err)
    }
    res, err = svc.VerifyCode(code)
    if err != nil {
        t.Fatalf("verify stale: %v", err)
    }
    if res.Valid {
        t.Fatal("stale code should not verify")
    }
    if res.Checks.IsCurrentQR {
        t.Error("stale code still reported current")
    }

    // Verification never mutates: no attendance rows appeared.
    var count int64
    svc.DB.Model(&models.Attendance{}).Count(&count)
    if count != 0 {
        t.Errorf("verify created %d attendance rows", count)
    }
}

type feedRecorder struct {
    mu     sync.Mutex
    events []FeedEvent
}

func (f *feedRecorder) PublishAttendance(evt FeedEvent) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.events = append(f.events, evt)
}

func TestMarkAttendancePublishesFeed(t *testing.T) {
    svc, clock := newTestService(t)
    feed := &feedRecorder{}
    svc.Feed = feed

    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    student := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)
    session := createTestSession(t, svc, env, host, clock.Now(), clock.Now().Add(time.Hour))
    code := *session.CurrentQRCode

    if _, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), Origin{IPAddress: "10.0.0.1"}); err != nil {
        t.Fatalf("check-in: %v", err)
    }
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), Origin{IPAddress: "10.0.0.1"}); err != nil {
        t.Fatalf("check-out: %v", err)
    }

    if len(feed.events) != 2 {
        t.Fatalf("expected 2 feed events, got %d", len(feed.events))
    }
    if feed.events[0].Type != MarkCheckIn || feed.events[1].Type != MarkCheckOut {
        t.Errorf("event order = %s, %s", feed.events[0].Type, feed.events[1].Type)
    }
    if feed.events[0].SessionID != session.ID {
        t.Error("event bound to wrong session")
    }
    if feed.events[0].AttendeeName != student.Name {
        t.Errorf("attendee name = %q, want %q", feed.events[0].AttendeeName, student.Name)
    }

    // Rejected scans never reach the feed.
    if _, err := svc.MarkAttendance(code, RegisteredAttendee(student.ID), Origin{IPAddress: "10.0.0.1"}); !errors.Is(err, ErrAlreadyCompleted) {
        t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
    }
    if len(feed.events) != 2 {
        t.Errorf("rejected scan leaked into the feed")
    }
}

// TestMorningLabTimetable runs a whole morning in one environment the way
// the system is used in practice.
func TestMorningLabTimetable(t *testing.T) {
    svc, clock := newTestService(t)
    env := createEnvironment(t, svc.DB, "LAB-01")
    host := createUser(t, svc.DB, "docente.a", models.RoleDocente)
    studentA := createUser(t, svc.DB, "2021100001", models.RoleEstudiante)
    studentB := createUser(t, svc.DB, "2021100002", models.RoleEstudiante)

    // 07:00 to 13:00, codes rotate every 3 minutes.
    start := clock.Now()
    session, err := svc.CreateSession(CreateSessionInput{
        EnvironmentID:     env.ID,
        Name:              "Systems Lab",
        Type:              models.SessionTypeClass,
        HostID:            &host.ID,
        StartTime:         start,
        EndTime:           start.Add(6 * time.Hour),
        QRRotationMinutes: 3,
    })
    if err != nil {
        t.Fatalf("create session: %v", err)
    }
    firstCode := *session.CurrentQRCode

    // 07:01 student A checks in on the opening code.
    clock.Advance(time.Minute)
    res, err := svc.MarkAttendance(firstCode, RegisteredAttendee(studentA.ID), Origin{IPAddress: "10.0.0.1"})
    if err != nil || res.Type != MarkCheckIn {
        t.Fatalf("A check-in: res=%+v err=%v", res, err)
    }

    // 07:04 the projector refreshes and gets a rotated code.
    clock.Advance(3 * time.Minute)
    issue, err := svc.GetOrRotateCode(session.ID, false, *host)
    if err != nil || !issue.Rotated {
        t.Fatalf("07:04 rotation: issue=%+v err=%v", issue, err)
    }

    // Student B photographed the old code; it no longer works.
    if _, err := svc.MarkAttendance(firstCode, RegisteredAttendee(studentB.ID), Origin{IPAddress: "10.0.0.2"}); !errors.Is(err, ErrCodeRotated) {
        t.Fatalf("B stale scan: got %v, want ErrCodeRotated", err)
    }
    if res, err = svc.MarkAttendance(issue.Code, RegisteredAttendee(studentB.ID), Origin{IPAddress: "10.0.0.2"}); err != nil || res.Type != MarkCheckIn {
        t.Fatalf("B check-in: res=%+v err=%v", res, err)
    }

    // Student A leaves early: second scan on the live code checks out.
    res, err = svc.MarkAttendance(issue.Code, RegisteredAttendee(studentA.ID), Origin{IPAddress: "10.0.0.1"})
    if err != nil || res.Type != MarkCheckOut {
        t.Fatalf("A check-out: res=%+v err=%v", res, err)
    }
    if got := res.Attendance.CheckOutTime.Sub(res.Attendance.CheckInTime); got != 3*time.Minute {
        t.Errorf("A presence = %v, want 3m", got)
    }

    // 07:10 the host wraps up; B is checked out by closure.
    clock.Advance(6 * time.Minute)
    if _, err := svc.CloseSession(session.ID, *host); err != nil {
        t.Fatalf("close: %v", err)
    }
    var b models.Attendance
    if err := svc.DB.Where("session_id = ? AND user_id = ?", session.ID, studentB.ID).First(&b).Error; err != nil {
        t.Fatalf("load B: %v", err)
    }
    if b.CheckOutTime == nil || !b.CheckOutTime.Equal(clock.Now()) {
        t.Errorf("B should be checked out at closure time %v, got %v", clock.Now(), b.CheckOutTime)
    }

    // The slot frees up for the next booking.
    if _, err := svc.CreateSession(CreateSessionInput{
        EnvironmentID: env.ID,
        Name:          "Makeup Lab",
        Type:          models.SessionTypeClass,
        HostID:        &host.ID,
        StartTime:     clock.Now(),
        EndTime:       clock.Now().Add(time.Hour),
    }); err != nil {
        t.Fatalf("rebooking after closure should pass admission, got %v", err)
    }
}
