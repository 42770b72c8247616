// Package client keeps a local, always-consistent copy of a teacher's
// classes, students and attendance records, synced against the HTTP API.
//
// The cache is replaced from server responses, never merged: every
// mutation returns the authoritative state of the slices it touched and
// the client swaps them in wholesale. A failed call leaves the cache
// untouched.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/classroom"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrClassBusy is returned while a previous change to the same class
	// is still in flight.
	ErrClassBusy = errors.New("a change for this class is already in progress")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialStore

	mu          sync.RWMutex
	token       string
	displayName string
	classes     []classroom.ClassRoom
	students    map[string][]classroom.Student
	attendance  map[string][]classroom.AttendanceRecord
	busy        map[string]bool
}

// NewClient returns a client for the API at baseURL (e.g.
// "http://localhost:8000"). creds may be nil, in which case no
// credential survives the process.
func NewClient(baseURL string, creds CredentialStore) *Client {
	if creds == nil {
		creds = noopCredentialStore{}
	}
	return &Client{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		students:   make(map[string][]classroom.Student),
		attendance: make(map[string][]classroom.AttendanceRecord),
		busy:       make(map[string]bool),
	}
}

// Start restores a saved session and performs a full resync. A missing,
// expired or rejected credential yields ErrNotAuthenticated with the
// credential discarded; the caller should fall back to Login.
func (c *Client) Start(ctx context.Context) error {
	token, err := c.creds.Load()
	if err != nil {
		return errors.Wrap(err, "loading credential")
	}
	if token == "" {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	if err = c.Resync(ctx); err != nil {
		if apiErr, ok := errors.Cause(err).(*APIError); ok &&
			(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			c.clearSession()
			return ErrNotAuthenticated
		}
		return err
	}
	return nil
}

// Resync replaces the whole cache with the server's current state.
func (c *Client) Resync(ctx context.Context) error {
	var snap classroom.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/data", nil, &snap); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayName = snap.DisplayName
	c.classes = snap.Classes
	c.students = make(map[string][]classroom.Student, len(snap.Students))
	for id, students := range snap.Students {
		c.students[id] = students
	}
	c.attendance = make(map[string][]classroom.AttendanceRecord, len(snap.Attendance))
	for id, records := range snap.Attendance {
		c.attendance[id] = records
	}
	return nil
}

type loginResponse struct {
	Token       string `json:"token"`
	DisplayName string `json:"displayName"`
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var res loginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/login", body, &res); err != nil {
		return err
	}
	return c.openSession(ctx, res)
}

func (c *Client) Register(ctx context.Context, name, email, password, displayName string) error {
	body := map[string]string{
		"name":        name,
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}
	var res loginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/register", body, &res); err != nil {
		return err
	}
	return c.openSession(ctx, res)
}

func (c *Client) openSession(ctx context.Context, res loginResponse) error {
	c.mu.Lock()
	c.token = res.Token
	c.displayName = res.DisplayName
	c.mu.Unlock()

	if err := c.creds.Save(res.Token); err != nil {
		return errors.Wrap(err, "saving credential")
	}
	return c.Resync(ctx)
}

// Logout drops the session and empties the cache.
func (c *Client) Logout() error {
	c.clearSession()
	return nil
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.token = ""
	c.displayName = ""
	c.classes = nil
	c.students = make(map[string][]classroom.Student)
	c.attendance = make(map[string][]classroom.AttendanceRecord)
	c.busy = make(map[string]bool)
	c.mu.Unlock()
	_ = c.creds.Clear()
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	body := map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}
	return c.do(ctx, http.MethodPost, "/v1/password-change", body, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, displayName string) error {
	body := map[string]string{"displayName": displayName}
	var res struct {
		DisplayName string `json:"displayName"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/profile", body, &res); err != nil {
		return err
	}
	c.mu.Lock()
	c.displayName = res.DisplayName
	c.mu.Unlock()
	return nil
}

// Mutations

func (c *Client) CreateClass(ctx context.Context, name string) (classroom.ClassRoom, error) {
	var res classroom.MutationResult
	err := c.do(ctx, http.MethodPost, "/v1/classes", classroom.NewClass{Name: name}, &res)
	if err != nil {
		return classroom.ClassRoom{}, err
	}

	c.mu.Lock()
	c.classes = res.Classes
	if res.NewClass != nil {
		c.students[res.NewClass.ID] = []classroom.Student{}
		c.attendance[res.NewClass.ID] = []classroom.AttendanceRecord{}
	}
	c.mu.Unlock()

	if res.NewClass == nil {
		return classroom.ClassRoom{}, nil
	}
	return *res.NewClass, nil
}

func (c *Client) DeleteClass(ctx context.Context, classID string) error {
	if err := c.beginClassOp(classID); err != nil {
		return err
	}
	defer c.endClassOp(classID)

	var res classroom.MutationResult
	err := c.do(ctx, http.MethodDelete, "/v1/classes/"+classID, nil, &res)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.classes = res.Classes
	delete(c.students, classID)
	delete(c.attendance, classID)
	c.mu.Unlock()
	return nil
}

func (c *Client) EnrollStudent(ctx context.Context, classID string, ns classroom.NewStudent) (classroom.Student, error) {
	if err := c.beginClassOp(classID); err != nil {
		return classroom.Student{}, err
	}
	defer c.endClassOp(classID)

	var res classroom.MutationResult
	err := c.do(ctx, http.MethodPost, "/v1/classes/"+classID+"/students", ns, &res)
	if err != nil {
		return classroom.Student{}, err
	}

	c.applyClassResult(classID, res)
	if res.NewStudent == nil {
		return classroom.Student{}, nil
	}
	return *res.NewStudent, nil
}

func (c *Client) DropStudent(ctx context.Context, classID, studentID string) error {
	if err := c.beginClassOp(classID); err != nil {
		return err
	}
	defer c.endClassOp(classID)

	var res classroom.MutationResult
	err := c.do(ctx, http.MethodDelete, "/v1/classes/"+classID+"/students/"+studentID, nil, &res)
	if err != nil {
		return err
	}
	c.applyClassResult(classID, res)
	return nil
}

func (c *Client) RecordAttendance(ctx context.Context, classID string, sheet classroom.AttendanceSheet) error {
	if err := c.beginClassOp(classID); err != nil {
		return err
	}
	defer c.endClassOp(classID)

	var res classroom.MutationResult
	err := c.do(ctx, http.MethodPost, "/v1/classes/"+classID+"/attendance", sheet, &res)
	if err != nil {
		return err
	}
	c.applyClassResult(classID, res)
	return nil
}

// applyClassResult swaps in the slices the server returned; anything it
// did not return keeps its cached value.
func (c *Client) applyClassResult(classID string, res classroom.MutationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.classes = res.Classes
	if res.Students != nil {
		c.students[classID] = res.Students
	}
	if res.Attendance != nil {
		c.attendance[classID] = res.Attendance
	}
}

func (c *Client) beginClassOp(classID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[classID] {
		return ErrClassBusy
	}
	c.busy[classID] = true
	return nil
}

func (c *Client) endClassOp(classID string) {
	c.mu.Lock()
	delete(c.busy, classID)
	c.mu.Unlock()
}

// Accessors (all return copies)

func (c *Client) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Classes() []classroom.ClassRoom {
	c.mu.RLock()
	defer c.mu.RUnlock()
	classes := make([]classroom.ClassRoom, len(c.classes))
	copy(classes, c.classes)
	return classes
}

func (c *Client) Students(classID string) []classroom.Student {
	c.mu.RLock()
	defer c.mu.RUnlock()
	students := make([]classroom.Student, len(c.students[classID]))
	copy(students, c.students[classID])
	return students
}

func (c *Client) Attendance(classID string) []classroom.AttendanceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	records := make([]classroom.AttendanceRecord, len(c.attendance[classID]))
	copy(records, c.attendance[classID])
	return records
}

// Transport

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response body")
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var body map[string]interface{}
	if err = json.Unmarshal(raw, &body); err != nil {
		return apiErr
	}
	if msg, ok := body["error"].(string); ok {
		apiErr.Message = msg
	} else if len(body) > 0 {
		// field validation errors come back as a field -> message map
		apiErr.Message = string(raw)
	}
	return apiErr
}
