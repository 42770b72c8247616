package client

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/classroom"
	"github.com/trezcool/mahudhurio/core/user"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
)

var ctx = context.Background()

// startServer spins up the real API on an in-memory store.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	conf := &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Mahudhurio",
		SecretKey: "secret",
		Server:    core.ServerConfig{JWTExpirationDelta: 1 * time.Hour},
	}

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(inmemdb.NewUserRepository(db), mailSvc, conf)
	classSvc := classroom.NewService(inmemdb.NewClassRepository(db))

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	app := echoapi.NewServer("", &echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    usrSvc,
		ClassSvc:   classSvc,
		Validate:   validate,
		Translator: translator,
	})

	srv := httptest.NewServer(app)
	t.Cleanup(srv.Close)
	return srv
}

func register(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Register(ctx, "Awe Some", "awe@test.cd", "lolcat", "Awe"); err != nil {
		t.Fatalf("Register(): %v", err)
	}
}

func TestClient_registerAndMutations(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL, nil)

	register(t, c)
	if c.Token() == "" {
		t.Fatal("no token after register")
	}
	if c.DisplayName() != "Awe" {
		t.Errorf("DisplayName() = %q; want %q", c.DisplayName(), "Awe")
	}
	if len(c.Classes()) != 0 {
		t.Errorf("len(Classes()) = %d; want 0", len(c.Classes()))
	}

	class, err := c.CreateClass(ctx, "Form 1A")
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	if len(c.Classes()) != 1 {
		t.Fatalf("len(Classes()) = %d; want 1", len(c.Classes()))
	}
	if got := c.Students(class.ID); len(got) != 0 {
		t.Errorf("Students() = %v; want empty", got)
	}

	std, err := c.EnrollStudent(ctx, class.ID, classroom.NewStudent{Name: "Amani", RegistrationNumber: "A1"})
	if err != nil {
		t.Fatalf("EnrollStudent(): %v", err)
	}
	if got := c.Students(class.ID); len(got) != 1 || got[0].ID != std.ID {
		t.Fatalf("Students() = %v; want [%s]", got, std.ID)
	}
	if c.Classes()[0].StudentCount != 1 {
		t.Errorf("StudentCount = %d; want 1", c.Classes()[0].StudentCount)
	}

	err = c.RecordAttendance(ctx, class.ID, classroom.AttendanceSheet{
		Date:    "2026-03-02",
		Records: []classroom.AttendanceEntry{{StudentID: std.ID, Present: true}},
	})
	if err != nil {
		t.Fatalf("RecordAttendance(): %v", err)
	}
	if got := c.Attendance(class.ID); len(got) != 1 || !got[0].Present {
		t.Fatalf("Attendance() = %v; want one present record", got)
	}
	if stats := c.Classes()[0].ClassStats; stats.SessionCount != 1 || stats.AttendanceRate != 100 {
		t.Errorf("stats = %+v; want 1 session at 100%%", stats)
	}

	if err = c.DropStudent(ctx, class.ID, std.ID); err != nil {
		t.Fatalf("DropStudent(): %v", err)
	}
	if got := c.Students(class.ID); len(got) != 0 {
		t.Errorf("Students() = %v; want empty after drop", got)
	}
	if got := c.Attendance(class.ID); len(got) != 0 {
		t.Errorf("Attendance() = %v; want empty after drop", got)
	}

	if err = c.DeleteClass(ctx, class.ID); err != nil {
		t.Fatalf("DeleteClass(): %v", err)
	}
	if len(c.Classes()) != 0 {
		t.Errorf("len(Classes()) = %d; want 0 after delete", len(c.Classes()))
	}
}

func TestClient_failedMutationLeavesCacheIntact(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL, nil)
	register(t, c)

	class, err := c.CreateClass(ctx, "Form 1A")
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	std, err := c.EnrollStudent(ctx, class.ID, classroom.NewStudent{Name: "Amani", RegistrationNumber: "A1"})
	if err != nil {
		t.Fatalf("EnrollStudent(): %v", err)
	}

	err = c.RecordAttendance(ctx, class.ID, classroom.AttendanceSheet{
		Date:    "2026-03-02",
		Records: []classroom.AttendanceEntry{{StudentID: "nope", Present: true}},
	})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error = %v; want *APIError", err)
	}
	if apiErr.Status != 404 {
		t.Errorf("Status = %d; want 404", apiErr.Status)
	}

	if got := c.Students(class.ID); len(got) != 1 || got[0].ID != std.ID {
		t.Errorf("Students() = %v; cache should be untouched", got)
	}
	if got := c.Attendance(class.ID); len(got) != 0 {
		t.Errorf("Attendance() = %v; cache should be untouched", got)
	}
}

func TestClient_busyClass(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL, nil)
	register(t, c)

	class, err := c.CreateClass(ctx, "Form 1A")
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}

	if err = c.beginClassOp(class.ID); err != nil {
		t.Fatalf("beginClassOp(): %v", err)
	}
	if err = c.DeleteClass(ctx, class.ID); err != ErrClassBusy {
		t.Errorf("error = %v; want %v", err, ErrClassBusy)
	}
	c.endClassOp(class.ID)

	if err = c.DeleteClass(ctx, class.ID); err != nil {
		t.Errorf("DeleteClass() after release: %v", err)
	}
}

func TestClient_startWithSavedCredential(t *testing.T) {
	srv := startServer(t)
	creds := &FileCredentialStore{Path: filepath.Join(t.TempDir(), "token")}

	c := NewClient(srv.URL, creds)
	register(t, c)
	if _, err := c.CreateClass(ctx, "Form 1A"); err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}

	// a new client restores the session from disk
	c2 := NewClient(srv.URL, creds)
	if err := c2.Start(ctx); err != nil {
		t.Fatalf("Start(): %v", err)
	}
	if c2.DisplayName() != "Awe" {
		t.Errorf("DisplayName() = %q; want %q", c2.DisplayName(), "Awe")
	}
	if len(c2.Classes()) != 1 {
		t.Errorf("len(Classes()) = %d; want 1", len(c2.Classes()))
	}
}

func TestClient_startWithBadCredential(t *testing.T) {
	srv := startServer(t)
	creds := &FileCredentialStore{Path: filepath.Join(t.TempDir(), "token")}
	if err := creds.Save("garbage"); err != nil {
		t.Fatalf("Save(): %v", err)
	}

	c := NewClient(srv.URL, creds)
	if err := c.Start(ctx); err != ErrNotAuthenticated {
		t.Fatalf("Start() error = %v; want %v", err, ErrNotAuthenticated)
	}

	// the rejected credential must be discarded
	token, err := creds.Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if token != "" {
		t.Error("credential not discarded")
	}
}

func TestClient_startWithNoCredential(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL, nil)
	if err := c.Start(ctx); err != ErrNotAuthenticated {
		t.Fatalf("Start() error = %v; want %v", err, ErrNotAuthenticated)
	}
}

func TestClient_logout(t *testing.T) {
	srv := startServer(t)
	creds := &FileCredentialStore{Path: filepath.Join(t.TempDir(), "token")}
	c := NewClient(srv.URL, creds)
	register(t, c)
	if _, err := c.CreateClass(ctx, "Form 1A"); err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}

	if err := c.Logout(); err != nil {
		t.Fatalf("Logout(): %v", err)
	}
	if c.Token() != "" || c.DisplayName() != "" || len(c.Classes()) != 0 {
		t.Error("cache not cleared on logout")
	}
	token, err := creds.Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if token != "" {
		t.Error("credential not cleared on logout")
	}
}

func TestClient_loginFlow(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL, nil)
	register(t, c)
	if err := c.Logout(); err != nil {
		t.Fatalf("Logout(): %v", err)
	}

	if err := c.Login(ctx, "awe@test.cd", "nope"); err == nil {
		t.Fatal("Login() with bad password should fail")
	}
	if err := c.Login(ctx, "awe@test.cd", "lolcat"); err != nil {
		t.Fatalf("Login(): %v", err)
	}
	if c.DisplayName() != "Awe" {
		t.Errorf("DisplayName() = %q; want %q", c.DisplayName(), "Awe")
	}
}

func TestPreviewClaims(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL, nil)
	register(t, c)

	claims, err := PreviewClaims(c.Token())
	if err != nil {
		t.Fatalf("PreviewClaims(): %v", err)
	}
	if claims.Subject == "" {
		t.Error("empty subject")
	}
	if claims.Email != "awe@test.cd" {
		t.Errorf("Email = %q; want %q", claims.Email, "awe@test.cd")
	}
	if claims.DisplayName != "Awe" {
		t.Errorf("DisplayName = %q; want %q", claims.DisplayName, "Awe")
	}
	if claims.Expired() {
		t.Error("fresh token reported expired")
	}

	if _, err = PreviewClaims("garbage"); err == nil {
		t.Error("PreviewClaims() should reject malformed tokens")
	}
}
