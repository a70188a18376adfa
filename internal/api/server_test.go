package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/config"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/logging"
	"github.com/nerrad567/tapflow-core/internal/sensor"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeFlows struct {
	mu         sync.Mutex
	flows      map[string]*flow.Definition
	executions map[string]*flow.Execution
	screens    map[string][]flow.LearnedScreen
}

func newFakeFlows(defs ...*flow.Definition) *fakeFlows {
	r := &fakeFlows{
		flows:      make(map[string]*flow.Definition),
		executions: make(map[string]*flow.Execution),
		screens:    make(map[string][]flow.LearnedScreen),
	}
	for _, def := range defs {
		r.flows[def.ID] = def
	}
	return r
}

func (r *fakeFlows) GetByID(_ context.Context, id string) (*flow.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.flows[id]
	if !ok {
		return nil, flow.ErrNotFound
	}
	cp := *def
	return &cp, nil
}

func (r *fakeFlows) List(context.Context) ([]flow.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]flow.Definition, 0, len(r.flows))
	for _, def := range r.flows {
		out = append(out, *def)
	}
	return out, nil
}

func (r *fakeFlows) ListByDevice(_ context.Context, deviceID string) ([]flow.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []flow.Definition
	for _, def := range r.flows {
		if def.DeviceID == deviceID {
			out = append(out, *def)
		}
	}
	return out, nil
}

func (r *fakeFlows) Create(_ context.Context, def *flow.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flows[def.ID]; ok {
		return flow.ErrExists
	}
	cp := *def
	r.flows[def.ID] = &cp
	return nil
}

func (r *fakeFlows) Update(_ context.Context, def *flow.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flows[def.ID]; !ok {
		return flow.ErrNotFound
	}
	cp := *def
	r.flows[def.ID] = &cp
	return nil
}

func (r *fakeFlows) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flows[id]; !ok {
		return flow.ErrNotFound
	}
	delete(r.flows, id)
	return nil
}

func (r *fakeFlows) CreateExecution(_ context.Context, exec *flow.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exec
	r.executions[exec.ID] = &cp
	return nil
}

func (r *fakeFlows) UpdateExecution(_ context.Context, exec *flow.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exec
	r.executions[exec.ID] = &cp
	return nil
}

func (r *fakeFlows) GetExecution(_ context.Context, id string) (*flow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.executions[id]
	if !ok {
		return nil, flow.ErrExecutionNotFound
	}
	cp := *exec
	return &cp, nil
}

func (r *fakeFlows) ListExecutions(_ context.Context, flowID string, limit int) ([]flow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []flow.Execution
	for _, exec := range r.executions {
		if exec.FlowID == flowID && len(out) < limit {
			out = append(out, *exec)
		}
	}
	return out, nil
}

func (r *fakeFlows) CreateLearnedScreen(_ context.Context, screen *flow.LearnedScreen) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screens[screen.ExecutionID] = append(r.screens[screen.ExecutionID], *screen)
	return nil
}

func (r *fakeFlows) ListLearnedScreens(_ context.Context, executionID string) ([]flow.LearnedScreen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screens[executionID], nil
}

type fakeSensors struct {
	mu      sync.Mutex
	sensors map[string]*sensor.Sensor
	drift   map[string][]sensor.DriftRecord
}

func newFakeSensors(sensors ...*sensor.Sensor) *fakeSensors {
	s := &fakeSensors{
		sensors: make(map[string]*sensor.Sensor),
		drift:   make(map[string][]sensor.DriftRecord),
	}
	for _, sen := range sensors {
		s.sensors[sen.ID] = sen
	}
	return s
}

func (s *fakeSensors) GetSensor(_ context.Context, id string) (*sensor.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sen, ok := s.sensors[id]
	if !ok {
		return nil, sensor.ErrNotFound
	}
	cp := *sen
	return &cp, nil
}

func (s *fakeSensors) ListSensors(context.Context) ([]sensor.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sensor.Sensor, 0, len(s.sensors))
	for _, sen := range s.sensors {
		out = append(out, *sen)
	}
	return out, nil
}

func (s *fakeSensors) ListByFlow(_ context.Context, flowID string) ([]sensor.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sensor.Sensor
	for _, sen := range s.sensors {
		if sen.FlowID == flowID {
			out = append(out, *sen)
		}
	}
	return out, nil
}

func (s *fakeSensors) CreateSensor(_ context.Context, sen *sensor.Sensor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[sen.ID]; ok {
		return sensor.ErrExists
	}
	cp := *sen
	s.sensors[sen.ID] = &cp
	return nil
}

func (s *fakeSensors) DeleteSensor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[id]; !ok {
		return sensor.ErrNotFound
	}
	delete(s.sensors, id)
	return nil
}

func (s *fakeSensors) IsDue(_ context.Context, id string, now time.Time) (bool, error) {
	sen, err := s.GetSensor(context.Background(), id)
	if err != nil {
		return false, err
	}
	return sen.Due(now), nil
}

func (s *fakeSensors) RecordCapture(_ context.Context, id, value string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sen, ok := s.sensors[id]
	if !ok {
		return sensor.ErrNotFound
	}
	sen.LastValue = &value
	sen.LastCapturedAt = &at
	return nil
}

func (s *fakeSensors) UpdateSensorBounds(_ context.Context, id string, oldBounds, newBounds flow.Bounds, distance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sen, ok := s.sensors[id]
	if !ok {
		return sensor.ErrNotFound
	}
	sen.Bounds = newBounds
	s.drift[id] = append(s.drift[id], sensor.DriftRecord{
		SensorID:  id,
		OldBounds: oldBounds,
		NewBounds: newBounds,
		Distance:  distance,
	})
	return nil
}

func (s *fakeSensors) ListDriftHistory(_ context.Context, sensorID string, limit int) ([]sensor.DriftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.drift[sensorID]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

type fakeRunner struct {
	mu       sync.Mutex
	err      error
	lastOpts executor.Options
	calls    int
}

func (r *fakeRunner) Execute(_ context.Context, deviceID, flowID string, opts executor.Options) (*executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastOpts = opts
	if r.err != nil {
		return nil, r.err
	}
	return &executor.Result{
		ExecutionID: "exec-1",
		FlowID:      flowID,
		DeviceID:    deviceID,
		Success:     true,
	}, nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	upserts   []string
	removes   []string
	suspended map[string]bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{suspended: make(map[string]bool)}
}

func (s *fakeScheduler) UpsertFlow(def *flow.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, def.ID)
}

func (s *fakeScheduler) RemoveFlow(_, flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes = append(s.removes, flowID)
}

func (s *fakeScheduler) Suspend(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended[deviceID] = true
}

func (s *fakeScheduler) Resume(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.suspended, deviceID)
}

func (s *fakeScheduler) Suspended(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended[deviceID]
}

// ─── Harness ────────────────────────────────────────────────────────────────

type apiHarness struct {
	server    *Server
	router    http.Handler
	flows     *fakeFlows
	sensors   *fakeSensors
	runner    *fakeRunner
	scheduler *fakeScheduler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	flows := newFakeFlows()
	sensors := newFakeSensors()
	runner := &fakeRunner{}
	sched := newFakeScheduler()

	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	srv, err := New(Deps{
		Security:  config.SecurityConfig{JWT: config.JWTConfig{Secret: testJWTSecret}},
		Logger:    logger,
		Flows:     flows,
		Sensors:   sensors,
		Runner:    runner,
		Scheduler: sched,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &apiHarness{
		server:    srv,
		router:    srv.buildRouter(),
		flows:     flows,
		sensors:   sensors,
		runner:    runner,
		scheduler: sched,
	}
}

func testToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "hub-integration",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func (h *apiHarness) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken(t, testJWTSecret))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func testFlow(id, deviceID string) *flow.Definition {
	return &flow.Definition{
		ID:       id,
		DeviceID: deviceID,
		Name:     "Oven status",
		Enabled:  true,
		Steps: []flow.Step{
			{Type: flow.StepTap, Tap: &flow.TapParams{X: 100, Y: 200}},
		},
		DefaultModes: flow.Modes{Repair: true},
	}
}

func testSensor(id, flowID string) *sensor.Sensor {
	return &sensor.Sensor{
		ID:               id,
		FlowID:           flowID,
		Name:             "Oven temperature",
		Bounds:           flow.Bounds{X: 100, Y: 200, Width: 80, Height: 40},
		ExtractionMethod: "ocr",
	}
}

// ─── Auth ───────────────────────────────────────────────────────────────────

func TestHealth_NoAuthRequired(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/", nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, "wrong-secret-wrong-secret-wrong!"))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	h := newAPIHarness(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "hub-integration",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flows/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// ─── Flows ──────────────────────────────────────────────────────────────────

func TestFlows_CreateAndGet(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/flows/", testFlow("flow-oven", "tablet-kitchen"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = h.request(t, http.MethodGet, "/api/v1/flows/flow-oven", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var def flow.Definition
	if err := json.Unmarshal(rec.Body.Bytes(), &def); err != nil {
		t.Fatalf("decoding flow: %v", err)
	}
	if def.DeviceID != "tablet-kitchen" {
		t.Errorf("DeviceID = %q", def.DeviceID)
	}

	// Creation must register the flow with the scheduler.
	if len(h.scheduler.upserts) != 1 || h.scheduler.upserts[0] != "flow-oven" {
		t.Errorf("scheduler upserts = %v", h.scheduler.upserts)
	}
}

func TestFlows_CreateInvalid(t *testing.T) {
	h := newAPIHarness(t)

	def := testFlow("flow-bad", "tablet-kitchen")
	def.Steps = nil
	rec := h.request(t, http.MethodPost, "/api/v1/flows/", def)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFlows_CreateDuplicate(t *testing.T) {
	h := newAPIHarness(t)

	h.request(t, http.MethodPost, "/api/v1/flows/", testFlow("flow-oven", "tablet-kitchen"))
	rec := h.request(t, http.MethodPost, "/api/v1/flows/", testFlow("flow-oven", "tablet-kitchen"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestFlows_GetUnknown(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodGet, "/api/v1/flows/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFlows_Delete(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")

	rec := h.request(t, http.MethodDelete, "/api/v1/flows/flow-oven", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(h.scheduler.removes) != 1 || h.scheduler.removes[0] != "flow-oven" {
		t.Errorf("scheduler removes = %v", h.scheduler.removes)
	}
}

func TestFlows_ListByDevice(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-a"] = testFlow("flow-a", "tablet-kitchen")
	h.flows.flows["flow-b"] = testFlow("flow-b", "tablet-hall")

	rec := h.request(t, http.MethodGet, "/api/v1/flows/?device_id=tablet-kitchen", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

// ─── Execute ────────────────────────────────────────────────────────────────

func TestExecute_Success(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")

	rec := h.request(t, http.MethodPost, "/api/v1/flows/flow-oven/execute", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result executor.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !result.Success || result.DeviceID != "tablet-kitchen" {
		t.Errorf("result = %+v", result)
	}

	// Without a body the flow's default modes apply.
	if !h.runner.lastOpts.Modes.Repair {
		t.Error("default repair mode not carried through")
	}
	if h.runner.lastOpts.TriggeredBy != "api" {
		t.Errorf("TriggeredBy = %q, want api", h.runner.lastOpts.TriggeredBy)
	}
}

func TestExecute_ModeOverride(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")

	body := map[string]any{"modes": map[string]bool{"learn": true, "force": true}}
	rec := h.request(t, http.MethodPost, "/api/v1/flows/flow-oven/execute", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	opts := h.runner.lastOpts
	if !opts.Modes.Learn || !opts.Modes.Force {
		t.Errorf("modes = %+v, want learn and force", opts.Modes)
	}
	if opts.Modes.Repair {
		t.Error("override should replace default modes, not merge")
	}
}

func TestExecute_DeviceBusy(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")
	h.runner.err = executor.ErrDeviceBusy

	rec := h.request(t, http.MethodPost, "/api/v1/flows/flow-oven/execute", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestExecute_FlowDisabled(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")
	h.runner.err = executor.ErrFlowDisabled

	rec := h.request(t, http.MethodPost, "/api/v1/flows/flow-oven/execute", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestExecute_UnknownFlow(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/flows/missing/execute", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if h.runner.calls != 0 {
		t.Error("runner called for unknown flow")
	}
}

// ─── Executions ─────────────────────────────────────────────────────────────

func TestExecutions_ListAndGet(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")
	h.flows.executions["exec-1"] = &flow.Execution{
		ID:       "exec-1",
		FlowID:   "flow-oven",
		DeviceID: "tablet-kitchen",
		Status:   flow.StatusCompleted,
	}

	rec := h.request(t, http.MethodGet, "/api/v1/flows/flow-oven/executions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}

	rec = h.request(t, http.MethodGet, "/api/v1/executions/exec-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = h.request(t, http.MethodGet, "/api/v1/executions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing status = %d, want 404", rec.Code)
	}
}

func TestExecutions_InvalidLimit(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")

	rec := h.request(t, http.MethodGet, "/api/v1/flows/flow-oven/executions?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// ─── Sensors ────────────────────────────────────────────────────────────────

func TestSensors_CreateRequiresFlow(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/sensors/", testSensor("oven-temp", "missing-flow"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSensors_CreateGetDelete(t *testing.T) {
	h := newAPIHarness(t)
	h.flows.flows["flow-oven"] = testFlow("flow-oven", "tablet-kitchen")

	rec := h.request(t, http.MethodPost, "/api/v1/sensors/", testSensor("oven-temp", "flow-oven"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = h.request(t, http.MethodGet, "/api/v1/sensors/oven-temp", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = h.request(t, http.MethodDelete, "/api/v1/sensors/oven-temp", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = h.request(t, http.MethodGet, "/api/v1/sensors/oven-temp", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestSensors_DriftHistory(t *testing.T) {
	h := newAPIHarness(t)
	h.sensors.sensors["oven-temp"] = testSensor("oven-temp", "flow-oven")
	h.sensors.drift["oven-temp"] = []sensor.DriftRecord{
		{SensorID: "oven-temp", Distance: 100},
	}

	rec := h.request(t, http.MethodGet, "/api/v1/sensors/oven-temp/drift", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

// ─── Devices ────────────────────────────────────────────────────────────────

func TestDevices_SuspendResume(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/devices/tablet-kitchen/suspend", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("suspend status = %d", rec.Code)
	}
	if !h.scheduler.Suspended("tablet-kitchen") {
		t.Error("device not suspended")
	}

	rec = h.request(t, http.MethodPost, "/api/v1/devices/tablet-kitchen/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d", rec.Code)
	}
	if h.scheduler.Suspended("tablet-kitchen") {
		t.Error("device still suspended after resume")
	}
}

// ─── WebSocket tickets ──────────────────────────────────────────────────────

func TestWSTicket_IssueAndRedeem(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/v1/auth/ws-ticket", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Ticket == "" {
		t.Fatal("empty ticket")
	}

	subject, ok := h.server.tickets.redeem(body.Ticket)
	if !ok {
		t.Fatal("ticket did not redeem")
	}
	if subject != "hub-integration" {
		t.Errorf("subject = %q", subject)
	}

	// Tickets are single use.
	if _, ok := h.server.tickets.redeem(body.Ticket); ok {
		t.Error("ticket redeemed twice")
	}
}

func TestTicketStore_Expiry(t *testing.T) {
	ts := newTicketStore()
	ticket := ts.issue("someone")

	ts.mu.Lock()
	entry := ts.tickets[ticket]
	entry.expiresAt = time.Now().Add(-time.Second)
	ts.tickets[ticket] = entry
	ts.mu.Unlock()

	if _, ok := ts.redeem(ticket); ok {
		t.Error("expired ticket redeemed")
	}
}
