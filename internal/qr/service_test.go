package qr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smartclassroom/server/internal/db"
	"smartclassroom/server/internal/model"
)

type fakeStore struct {
	classes    map[string]model.ClassSession
	tokens     map[string]model.QRToken
	students   map[string]model.Student
	attendance map[string]model.AttendanceRecord // key: cedula|classID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		classes:    make(map[string]model.ClassSession),
		tokens:     make(map[string]model.QRToken),
		students:   make(map[string]model.Student),
		attendance: make(map[string]model.AttendanceRecord),
	}
}

func (f *fakeStore) GetClassSession(_ context.Context, classID string) (model.ClassSession, error) {
	class, ok := f.classes[classID]
	if !ok {
		return model.ClassSession{}, db.ErrNotFound
	}
	return class, nil
}

func (f *fakeStore) UpsertQRToken(_ context.Context, token model.QRToken) error {
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeStore) GetActiveQRToken(_ context.Context, token string) (model.QRToken, error) {
	row, ok := f.tokens[token]
	if !ok || !row.Active {
		return model.QRToken{}, db.ErrNotFound
	}
	return row, nil
}

func (f *fakeStore) GetStudentByCedula(_ context.Context, cedula string) (model.Student, error) {
	student, ok := f.students[cedula]
	if !ok {
		return model.Student{}, db.ErrNotFound
	}
	return student, nil
}

func (f *fakeStore) GetAttendance(_ context.Context, cedula, classID string) (model.AttendanceRecord, error) {
	record, ok := f.attendance[cedula+"|"+classID]
	if !ok {
		return model.AttendanceRecord{}, db.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) CreateAttendance(_ context.Context, record model.AttendanceRecord) error {
	key := record.Cedula + "|" + record.ClassID
	if _, ok := f.attendance[key]; ok {
		return db.ErrDuplicate
	}
	f.attendance[key] = record
	return nil
}

func (f *fakeStore) ListAttendanceByClass(_ context.Context, classID string) ([]model.AttendanceRecord, error) {
	records := make([]model.AttendanceRecord, 0)
	for _, record := range f.attendance {
		if record.ClassID == classID {
			records = append(records, record)
		}
	}
	return records, nil
}

func testService(store *fakeStore, now time.Time) *Service {
	svc := NewService(store, Config{
		Secret:           testSecret,
		Rotation:         testRotation,
		TokenMinValidity: 24 * time.Hour,
		PeriodDuration:   time.Hour,
		LateThreshold:    15 * time.Minute,
		BaseURL:          "http://localhost:5173",
	})
	svc.now = func() time.Time { return now }
	return svc
}

func seedClass(store *fakeStore, classID string, start time.Time, length time.Duration) {
	store.classes[classID] = model.ClassSession{
		ID:        "id-" + classID,
		ClassID:   classID,
		ClassName: "Class " + classID,
		TeacherID: "teacher-1",
		StartTime: start,
		EndTime:   start.Add(length),
	}
}

func TestGenerateToken(t *testing.T) {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedClass(store, "MAT101", start, 2*time.Hour)
	svc := testService(store, start.Add(5*time.Minute))

	info, err := svc.GenerateToken(context.Background(), "MAT101", 1, "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(info.Token) != 32 {
		t.Fatalf("token length %d, want 32", len(info.Token))
	}
	// The class ends well before now+24h, so the floor wins.
	wantExpiry := start.Add(5*time.Minute + 24*time.Hour)
	if !info.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("ExpiresAt = %s, want %s", info.ExpiresAt, wantExpiry)
	}
	if !strings.Contains(info.QRURL, "/verificar-asistencia?token="+info.Token) {
		t.Fatalf("QRURL = %q", info.QRURL)
	}
	if !strings.HasPrefix(info.QRImage, "data:image/png;base64,") {
		t.Fatalf("QRImage is not a PNG data URL")
	}
	if stored := store.tokens[info.Token]; !stored.Active || stored.ClassID != "MAT101" {
		t.Fatalf("stored token = %+v", stored)
	}

	if _, err := svc.GenerateToken(context.Background(), "NOPE", 1, ""); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("unknown class: %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedClass(store, "MAT101", start, 2*time.Hour)
	svc := testService(store, start)

	info, err := svc.GenerateToken(context.Background(), "MAT101", 2, "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	status, err := svc.ValidateToken(context.Background(), info.Token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if !status.Valid || status.ClassID != "MAT101" || status.PeriodNumber != 2 {
		t.Fatalf("status = %+v", status)
	}
	if status.ClassName != "Class MAT101" {
		t.Fatalf("ClassName = %q", status.ClassName)
	}

	status, err = svc.ValidateToken(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	if err != nil || status.Valid {
		t.Fatalf("unknown token: status=%+v err=%v", status, err)
	}

	svc.now = func() time.Time { return info.ExpiresAt.Add(time.Minute) }
	status, err = svc.ValidateToken(context.Background(), info.Token)
	if err != nil || status.Valid {
		t.Fatalf("expired token: status=%+v err=%v", status, err)
	}
}

func TestVerifyCodePipeline(t *testing.T) {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedClass(store, "MAT101", start, 2*time.Hour)
	store.students["1310000001"] = model.Student{Cedula: "1310000001", Name: "Ana"}

	issueAt := start.Add(5 * time.Minute)
	svc := testService(store, issueAt)
	info, err := svc.GenerateToken(context.Background(), "MAT101", 1, "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	// First check-in 10s after issuing: accepted, within the late threshold.
	svc.now = func() time.Time { return issueAt.Add(10 * time.Second) }
	code := CurrentCode(testSecret, "MAT101", testRotation, svc.now()).Code
	result, err := svc.VerifyCode(context.Background(), VerifyRequest{
		Token: info.Token, Code: code, Cedula: "1310000001",
	})
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if result.AlreadyRegistered || result.Status != "verified" {
		t.Fatalf("first check-in = %+v", result)
	}
	if result.AttendanceStatus != StatusPresent {
		t.Fatalf("AttendanceStatus = %q, want present", result.AttendanceStatus)
	}
	if _, ok := store.attendance["1310000001|MAT101_P1"]; !ok {
		t.Fatalf("attendance row missing under the per-period class id")
	}

	// Same student again 5s later: success, flagged as already registered,
	// and no second row.
	svc.now = func() time.Time { return issueAt.Add(15 * time.Second) }
	repeat, err := svc.VerifyCode(context.Background(), VerifyRequest{
		Token: info.Token, Code: code, Cedula: "1310000001",
	})
	if err != nil {
		t.Fatalf("repeat VerifyCode: %v", err)
	}
	if !repeat.AlreadyRegistered {
		t.Fatalf("repeat check-in = %+v", repeat)
	}
	if !repeat.RecordedAt.Equal(result.RecordedAt) {
		t.Fatalf("repeat reported a new timestamp: %s vs %s", repeat.RecordedAt, result.RecordedAt)
	}
	if len(store.attendance) != 1 {
		t.Fatalf("expected a single attendance row, got %d", len(store.attendance))
	}

	// Wrong code is rejected outright.
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := svc.VerifyCode(context.Background(), VerifyRequest{
		Token: info.Token, Code: wrong, Cedula: "1310000001",
	}); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("wrong code: %v", err)
	}

	// Unknown student and unknown token fail with their own errors.
	if _, err := svc.VerifyCode(context.Background(), VerifyRequest{
		Token: info.Token, Code: code, Cedula: "9999999999",
	}); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("unknown student: %v", err)
	}
	if _, err := svc.VerifyCode(context.Background(), VerifyRequest{
		Token: "deadbeefdeadbeefdeadbeefdeadbeef", Code: code, Cedula: "1310000001",
	}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("unknown token: %v", err)
	}
}

func TestVerifyCodeLateStatus(t *testing.T) {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedClass(store, "MAT101", start, 2*time.Hour)
	store.students["1310000002"] = model.Student{Cedula: "1310000002", Name: "Luis"}

	svc := testService(store, start)
	info, err := svc.GenerateToken(context.Background(), "MAT101", 2, "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	// Period 2 starts at 09:00; checking in at 09:20 is past the threshold.
	checkIn := start.Add(time.Hour + 20*time.Minute)
	svc.now = func() time.Time { return checkIn }
	code := CurrentCode(testSecret, "MAT101", testRotation, checkIn).Code
	result, err := svc.VerifyCode(context.Background(), VerifyRequest{
		Token: info.Token, Code: code, Cedula: "1310000002",
	})
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if result.AttendanceStatus != StatusLate {
		t.Fatalf("AttendanceStatus = %q, want late", result.AttendanceStatus)
	}
	if result.ClassID != "MAT101" || result.PeriodNumber != 2 {
		t.Fatalf("result = %+v", result)
	}
}

func TestClassPeriods(t *testing.T) {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedClass(store, "MAT101", start, 2*time.Hour)

	svc := testService(store, start.Add(90*time.Minute))
	class, periods, current, err := svc.ClassPeriods(context.Background(), "MAT101")
	if err != nil {
		t.Fatalf("ClassPeriods: %v", err)
	}
	if class.ClassID != "MAT101" {
		t.Fatalf("class id = %q", class.ClassID)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(periods))
	}
	if current == nil || current.Number != 2 {
		t.Fatalf("current period = %+v, want period 2", current)
	}
	if !current.LateThreshold.Equal(current.Start.Add(15 * time.Minute)) {
		t.Fatalf("late threshold = %s", current.LateThreshold)
	}

	// After hours there is no current period, but the listing survives.
	svc = testService(store, start.Add(5*time.Hour))
	_, periods, current, err = svc.ClassPeriods(context.Background(), "MAT101")
	if err != nil {
		t.Fatalf("ClassPeriods after hours: %v", err)
	}
	if current != nil {
		t.Fatalf("current period after hours = %+v, want nil", current)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods after hours, got %d", len(periods))
	}
}

func TestAttendanceByPeriod(t *testing.T) {
	start := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seedClass(store, "MAT101", start, 2*time.Hour)
	store.attendance["a|MAT101_P1"] = model.AttendanceRecord{ID: "1", Cedula: "a", ClassID: "MAT101_P1", Status: StatusPresent}
	store.attendance["b|MAT101_P1"] = model.AttendanceRecord{ID: "2", Cedula: "b", ClassID: "MAT101_P1", Status: StatusLate}
	store.attendance["a|MAT101_P2"] = model.AttendanceRecord{ID: "3", Cedula: "a", ClassID: "MAT101_P2", Status: StatusPresent}

	svc := testService(store, start.Add(30*time.Minute))
	rolls, err := svc.AttendanceByPeriod(context.Background(), "MAT101")
	if err != nil {
		t.Fatalf("AttendanceByPeriod: %v", err)
	}
	if len(rolls) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(rolls))
	}
	if rolls[0].Count != 2 || rolls[1].Count != 1 {
		t.Fatalf("counts = %d, %d", rolls[0].Count, rolls[1].Count)
	}
	if rolls[0].PresentCount != 1 || rolls[0].LateCount != 1 {
		t.Fatalf("period 1 present/late = %d/%d, want 1/1", rolls[0].PresentCount, rolls[0].LateCount)
	}
	if rolls[1].PresentCount != 1 || rolls[1].LateCount != 0 {
		t.Fatalf("period 2 present/late = %d/%d, want 1/0", rolls[1].PresentCount, rolls[1].LateCount)
	}
	if rolls[0].Period.Number != 1 || rolls[1].Period.Number != 2 {
		t.Fatalf("period numbering off: %+v", rolls)
	}
}
