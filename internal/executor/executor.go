package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tapflow-core/internal/device"
	"github.com/nerrad567/tapflow-core/internal/element"
	"github.com/nerrad567/tapflow-core/internal/extraction"
	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/navigation"
	"github.com/nerrad567/tapflow-core/internal/sensor"
)

// AgentProvider resolves a device ID to its agent. Satisfied by
// device.Registry.
type AgentProvider interface {
	Get(deviceID string) (device.Agent, error)
}

// BoundsRepairer rewrites drifted sensor bounds. Satisfied by
// sensor.BoundsRepairService.
type BoundsRepairer interface {
	UpdateBounds(ctx context.Context, sensorID string, newBounds flow.Bounds) (bool, error)
}

// EventSink receives execution events for publishing. Implementations
// fan out to MQTT, the websocket hub, and the time series store; the
// executor itself stays transport-free.
type EventSink interface {
	FlowCompleted(flowID, deviceID string, result *Result)
	SensorCaptured(deviceID, sensorID, value string)
	DriftRepaired(deviceID, sensorID string, distance float64)
}

// Logger is the subset of the logging package the executor needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps are the executor's collaborators.
type Deps struct {
	Flows     flow.Repository
	Sensors   sensor.Store
	Agents    AgentProvider
	Repair    BoundsRepairer
	Extractor extraction.Extractor
	Logger    Logger
	Sink      EventSink
}

// Executor replays flows against devices. It carries no global mutable
// state beyond the per-device lock registry; every execution builds a
// fresh Result.
type Executor struct {
	cfg      Config
	flows    flow.Repository
	sensors  sensor.Store
	agents   AgentProvider
	repair   BoundsRepairer
	extract  extraction.Extractor
	finder   *element.Finder
	verifier *navigation.Verifier
	skip     *SkipAnalyzer
	learn    *LearnModeRecorder
	locks    *LockRegistry
	logger   Logger
	sink     EventSink
}

// New creates an executor.
func New(cfg Config, deps Deps) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		cfg:      cfg,
		flows:    deps.Flows,
		sensors:  deps.Sensors,
		agents:   deps.Agents,
		repair:   deps.Repair,
		extract:  deps.Extractor,
		finder:   element.NewFinder(element.Options{}),
		verifier: navigation.NewVerifier(cfg.ActivityPollInterval, cfg.ActivityTimeout),
		skip:     NewSkipAnalyzer(deps.Sensors),
		learn:    NewLearnModeRecorder(deps.Flows),
		locks:    NewLockRegistry(),
		logger:   deps.Logger,
		sink:     deps.Sink,
	}
}

// Locks exposes the per-device lock registry, letting the scheduler
// check device availability without attempting an execution.
func (e *Executor) Locks() *LockRegistry {
	return e.locks
}

// Execute runs a flow against its device.
//
// The device lock is held for the whole run and released on every exit
// path, including cancellation. Transport failures re-run the whole
// flow up to MaxTransportRetries with doubling backoff; logical
// failures never retry.
//
// Parameters:
//   - ctx: Cancels the execution at the next suspension point
//   - deviceID: Must match the flow's device
//   - flowID: The flow to run
//   - opts: Mode flags and trigger attribution
//
// Returns:
//   - *Result: Structured outcome, also persisted as an execution record
//   - error: Pre-execution failures (ErrDeviceBusy, flow.ErrNotFound,
//     ErrFlowDisabled, ErrDeviceMismatch) or the context's error on
//     cancellation; a flow that ran and failed returns a Result with
//     Success=false and a nil error
func (e *Executor) Execute(ctx context.Context, deviceID, flowID string, opts Options) (*Result, error) {
	def, err := e.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if def.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: flow %q targets %q", ErrDeviceMismatch, flowID, def.DeviceID)
	}
	if !def.Enabled {
		return nil, fmt.Errorf("%w: %q", ErrFlowDisabled, flowID)
	}

	release, err := e.locks.Acquire(deviceID)
	if err != nil {
		return nil, err
	}
	defer release()

	agent, err := e.agents.Get(deviceID)
	if err != nil {
		return nil, err
	}

	triggeredBy := opts.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "manual"
	}

	exec := &flow.Execution{
		ID:          uuid.NewString(),
		FlowID:      flowID,
		DeviceID:    deviceID,
		TriggeredAt: time.Now().UTC(),
		TriggeredBy: triggeredBy,
		Status:      flow.StatusRunning,
		TotalSteps:  len(def.Steps),
	}
	if err := e.flows.CreateExecution(ctx, exec); err != nil {
		e.logger.Error("recording execution start", "flow_id", flowID, "error", err)
	}

	result, runErr := e.runWithRetries(ctx, agent, def, opts, exec.ID)
	e.finalize(exec, result, runErr)

	if e.sink != nil {
		e.sink.FlowCompleted(flowID, deviceID, result)
	}

	if runErr != nil && ctx.Err() != nil {
		return result, runErr
	}
	return result, nil
}

// runWithRetries re-runs the whole flow on transport failure, backing
// off twice as long each attempt. Logical failures return immediately.
func (e *Executor) runWithRetries(ctx context.Context, agent device.Agent, def *flow.Definition, opts Options, execID string) (*Result, error) {
	backoff := e.cfg.RetryBackoff

	for attempt := 0; ; attempt++ {
		result, err := e.runOnce(ctx, agent, def, opts, execID)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !errors.Is(err, device.ErrUnreachable) || attempt >= e.cfg.MaxTransportRetries {
			result.Success = false
			result.ErrorMessage = err.Error()
			return result, err
		}

		e.logger.Warn("device unreachable, retrying flow",
			"flow_id", def.ID,
			"device_id", def.DeviceID,
			"attempt", attempt+1,
			"backoff", backoff.String(),
		)

		select {
		case <-ctx.Done():
			result.Success = false
			result.ErrorMessage = ctx.Err().Error()
			return result, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// runOnce executes every step of the flow a single time. The returned
// error is non-nil only for transport failures and cancellation; all
// logical outcomes are encoded in the Result.
func (e *Executor) runOnce(ctx context.Context, agent device.Agent, def *flow.Definition, opts Options, execID string) (*Result, error) {
	start := time.Now()
	res := &Result{
		ExecutionID:     execID,
		FlowID:          def.ID,
		DeviceID:        def.DeviceID,
		TotalSteps:      len(def.Steps),
		CapturedSensors: make(map[string]string),
	}

	skippable, err := e.skip.Analyze(ctx, def, opts.Modes.Force, time.Now().UTC())
	if err != nil {
		e.logger.Error("skip analysis failed, running all steps", "flow_id", def.ID, "error", err)
		skippable = map[int]bool{}
	}

	stepsFailed := 0
	aborted := false

	for i, step := range def.Steps {
		if ctx.Err() != nil {
			res.DurationMS = time.Since(start).Milliseconds()
			res.ErrorMessage = ctx.Err().Error()
			return res, ctx.Err()
		}

		if skippable[i] {
			res.Steps = append(res.Steps, flow.StepRecord{
				Index:  i,
				Type:   step.Type,
				Status: flow.StepStatusSkipped,
			})
			continue
		}

		stepStart := time.Now()
		outcome, stepErr := e.runStep(ctx, agent, def, i, step, opts, res)
		record := flow.StepRecord{
			Index:      i,
			Type:       step.Type,
			DurationMS: time.Since(stepStart).Milliseconds(),
		}

		if stepErr != nil {
			record.Status = flow.StepStatusFailed
			record.Error = stepErr.Error()
			res.Steps = append(res.Steps, record)
			res.DurationMS = time.Since(start).Milliseconds()
			res.ErrorMessage = stepErr.Error()
			return res, stepErr
		}

		if outcome.success {
			record.Status = flow.StepStatusSucceeded
		} else {
			record.Status = flow.StepStatusFailed
			record.Error = outcome.errMsg
			stepsFailed++
		}
		res.ExecutedSteps++
		res.Steps = append(res.Steps, record)

		if opts.Modes.Learn {
			e.recordLearnedScreen(ctx, agent, def, i, step, outcome.success, execID, res)
		}

		if !outcome.success && opts.Modes.Strict {
			res.ErrorMessage = fmt.Sprintf("step %d failed: %s", i, outcome.errMsg)
			aborted = true
			break
		}
	}

	res.DurationMS = time.Since(start).Milliseconds()
	res.Success = !aborted && stepsFailed == 0
	res.PartialSuccess = !res.Success && !aborted
	return res, nil
}

// stepOutcome is a step's logical result. Transport failures travel as
// errors instead, so they can trigger a flow-level retry.
type stepOutcome struct {
	success bool
	errMsg  string
}

var stepOK = stepOutcome{success: true}

func stepFail(format string, args ...any) stepOutcome {
	return stepOutcome{errMsg: fmt.Sprintf(format, args...)}
}

func (e *Executor) runStep(ctx context.Context, agent device.Agent, def *flow.Definition, idx int, step flow.Step, opts Options, res *Result) (stepOutcome, error) {
	switch step.Type {
	case flow.StepTap:
		return e.runTap(ctx, agent, idx, step, opts, res)
	case flow.StepSwipe:
		p := step.Swipe
		if err := agent.Swipe(ctx, p.X1, p.Y1, p.X2, p.Y2, p.DurationMS); err != nil {
			return e.commandOutcome(err)
		}
		return e.verifyActivity(ctx, agent, idx, step.ExpectedActivity, opts, res)
	case flow.StepTypeText:
		if err := agent.TypeText(ctx, step.TypeText.Text); err != nil {
			return e.commandOutcome(err)
		}
		return e.verifyActivity(ctx, agent, idx, step.ExpectedActivity, opts, res)
	case flow.StepKeyEvent:
		if err := agent.KeyEvent(ctx, step.KeyEvent.Code); err != nil {
			return e.commandOutcome(err)
		}
		return e.verifyActivity(ctx, agent, idx, step.ExpectedActivity, opts, res)
	case flow.StepWait:
		return e.runWait(ctx, agent, step.Wait)
	case flow.StepCaptureSensor:
		return e.runCaptureSensor(ctx, agent, def, step.CaptureSensor.SensorID, opts, res)
	default:
		return stepFail("unknown step type %q", step.Type), nil
	}
}

// runTap resolves the target element if a descriptor is present, taps,
// and verifies the expected activity.
func (e *Executor) runTap(ctx context.Context, agent device.Agent, idx int, step flow.Step, opts Options, res *Result) (stepOutcome, error) {
	p := step.Tap
	x, y := p.X, p.Y

	if p.Target != nil {
		snap, err := agent.Snapshot(ctx)
		if err != nil {
			return e.commandOutcome(err)
		}

		m := e.finder.Find(snap.Elements, *p.Target)
		if !m.Found() {
			// A descriptor tap mandates a resolved element.
			return stepFail("element not found for tap target (resource_id=%q text=%q)",
				p.Target.ResourceID, p.Target.Text), nil
		}
		if m.Strategy != element.StrategyExactBounds {
			e.logger.Debug("tap target drifted",
				"step", idx,
				"strategy", string(m.Strategy),
				"distance", m.DriftDistance,
			)
		}
		cx, cy := m.Matched.Bounds.Center()
		x, y = int(cx), int(cy)
	}

	if err := agent.Tap(ctx, x, y); err != nil {
		return e.commandOutcome(err)
	}
	return e.verifyActivity(ctx, agent, idx, step.ExpectedActivity, opts, res)
}

// runWait performs either a plain timed wait or a multi-refresh wait:
// refresh_attempts snapshot refreshes spaced refresh_delay apart.
func (e *Executor) runWait(ctx context.Context, agent device.Agent, p *flow.WaitParams) (stepOutcome, error) {
	if p.RefreshAttempts > 0 {
		delay := time.Duration(p.RefreshDelayMS) * time.Millisecond
		for n := 0; n < p.RefreshAttempts; n++ {
			select {
			case <-ctx.Done():
				return stepOutcome{}, ctx.Err()
			case <-time.After(delay):
			}
			if _, err := agent.Snapshot(ctx); err != nil {
				return e.commandOutcome(err)
			}
		}
		return stepOK, nil
	}

	select {
	case <-ctx.Done():
		return stepOutcome{}, ctx.Err()
	case <-time.After(time.Duration(p.DurationMS) * time.Millisecond):
	}
	return stepOK, nil
}

// runCaptureSensor reads a sensor's value off the current screen,
// resolving element drift and repairing stored bounds when enabled.
func (e *Executor) runCaptureSensor(ctx context.Context, agent device.Agent, def *flow.Definition, sensorID string, opts Options, res *Result) (stepOutcome, error) {
	sen, err := e.sensors.GetSensor(ctx, sensorID)
	if err != nil {
		return stepFail("loading sensor %q: %s", sensorID, err), nil
	}

	// Screen mismatch on capture is log-only: the extraction either
	// produces a plausible value or it doesn't, and strict navigation
	// enforcement belongs to the preceding navigation steps.
	if sen.ExpectedActivity != "" {
		actual, aerr := agent.CurrentActivity(ctx)
		if aerr != nil {
			if errors.Is(aerr, device.ErrUnreachable) {
				return stepOutcome{}, aerr
			}
			e.logger.Warn("activity check failed before capture", "sensor_id", sensorID, "error", aerr)
		} else if !navigation.ActivityMatches(actual, sen.ExpectedActivity) {
			e.logger.Warn("capturing sensor on unexpected screen",
				"sensor_id", sensorID,
				"expected", sen.ExpectedActivity,
				"actual", actual,
			)
		}
	}

	region := sen.Bounds
	if !sen.Element.IsEmpty() {
		resolved, err := e.resolveSensorRegion(ctx, agent, def.DeviceID, sen, opts, res)
		if err != nil {
			return stepOutcome{}, err
		}
		region = resolved
	}

	value, xerr := e.extract.Extract(ctx, def.DeviceID, region, sen.ExtractionMethod, sen.ExtractionParams)
	if xerr != nil {
		// Extraction failures downgrade to an empty value.
		e.logger.Warn("extraction failed", "sensor_id", sensorID, "error", xerr)
		res.CapturedSensors[sensorID] = ""
		return stepOK, nil
	}

	res.CapturedSensors[sensorID] = value
	if err := e.sensors.RecordCapture(ctx, sensorID, value, time.Now().UTC()); err != nil {
		e.logger.Error("recording capture", "sensor_id", sensorID, "error", err)
	}
	if e.sink != nil {
		e.sink.SensorCaptured(def.DeviceID, sensorID, value)
	}
	return stepOK, nil
}

// resolveSensorRegion re-finds the sensor's backing element on the live
// screen. Drift above the threshold found via a non-exact strategy
// triggers a bounds repair when repair mode is on. The live bounds are
// used for this capture either way.
func (e *Executor) resolveSensorRegion(ctx context.Context, agent device.Agent, deviceID string, sen *sensor.Sensor, opts Options, res *Result) (flow.Bounds, error) {
	snap, err := agent.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, device.ErrUnreachable) {
			return flow.Bounds{}, err
		}
		e.logger.Warn("snapshot failed, using recorded bounds", "sensor_id", sen.ID, "error", err)
		return sen.Bounds, nil
	}

	target := sen.Element
	target.Bounds = sen.Bounds

	m := e.finder.Find(snap.Elements, target)
	if !m.Found() {
		e.logger.Warn("sensor element not found, using recorded bounds", "sensor_id", sen.ID)
		return sen.Bounds, nil
	}

	if opts.Modes.Repair &&
		m.Strategy != element.StrategyExactBounds &&
		m.DriftDistance > e.cfg.DriftRepairThreshold {
		changed, rerr := e.repair.UpdateBounds(ctx, sen.ID, m.Matched.Bounds)
		if rerr != nil {
			e.logger.Error("bounds repair failed", "sensor_id", sen.ID, "error", rerr)
		} else if changed {
			res.BoundsRepaired = append(res.BoundsRepaired, BoundsRepair{
				SensorID:  sen.ID,
				OldBounds: sen.Bounds,
				NewBounds: m.Matched.Bounds,
				Distance:  m.DriftDistance,
				Strategy:  string(m.Strategy),
			})
			if e.sink != nil {
				e.sink.DriftRepaired(deviceID, sen.ID, m.DriftDistance)
			}
		}
	}

	return m.Matched.Bounds, nil
}

// verifyActivity enforces a step's expected activity. Mismatches fail
// the step only under strict or learn mode; the permissive default
// logs a warning and lets the step succeed.
func (e *Executor) verifyActivity(ctx context.Context, agent device.Agent, idx int, expected string, opts Options, res *Result) (stepOutcome, error) {
	if expected == "" {
		return stepOK, nil
	}

	actual, err := e.verifier.WaitForActivity(ctx, agent.CurrentActivity, expected)
	if err != nil {
		if errors.Is(err, navigation.ErrActivityTimeout) {
			if opts.Modes.Strict || opts.Modes.Learn {
				res.NavigationFailures = append(res.NavigationFailures, NavigationFailure{
					StepIndex: idx,
					Expected:  expected,
					Actual:    actual,
				})
				return stepFail("expected activity %q, device on %q", expected, actual), nil
			}
			e.logger.Warn("navigation mismatch tolerated",
				"step", idx,
				"expected", expected,
				"actual", actual,
			)
			return stepOK, nil
		}
		// Query errors carry the transport classification.
		return stepOutcome{}, err
	}
	return stepOK, nil
}

// commandOutcome classifies a device error: transport failures travel
// as errors for flow-level retry, logical failures fail the step.
func (e *Executor) commandOutcome(err error) (stepOutcome, error) {
	if errors.Is(err, device.ErrUnreachable) {
		return stepOutcome{}, err
	}
	return stepOutcome{errMsg: err.Error()}, nil
}

// recordLearnedScreen captures the post-step UI state. Failures are
// recorded with step_success=false, never discarded.
func (e *Executor) recordLearnedScreen(ctx context.Context, agent device.Agent, def *flow.Definition, idx int, step flow.Step, stepSuccess bool, execID string, res *Result) {
	snap, err := agent.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("learn snapshot failed", "step", idx, "error", err)
		snap = nil
	}

	id, err := e.learn.Record(ctx, execID, def.ID, idx, step, snap, stepSuccess)
	if err != nil {
		e.logger.Error("recording learned screen", "step", idx, "error", err)
		return
	}
	res.LearnedScreens = append(res.LearnedScreens, id)
}

// finalize stamps the execution record with the run's outcome. Uses a
// fresh context so a cancelled run still gets persisted.
func (e *Executor) finalize(exec *flow.Execution, res *Result, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	completed := time.Now().UTC()
	exec.CompletedAt = &completed
	exec.ExecutedSteps = res.ExecutedSteps
	exec.DurationMS = &res.DurationMS
	exec.Steps = res.Steps

	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		exec.Status = flow.StatusCancelled
	default:
		exec.Status = res.Status()
	}
	if res.ErrorMessage != "" {
		exec.ErrorMessage = &res.ErrorMessage
	}

	if err := e.flows.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("recording execution outcome", "execution_id", exec.ID, "error", err)
	}
}
