package anthropometry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrBatchTooLarge = errors.New("batch exceeds the maximum size")

// Recorder receives evaluation metrics. telemetry.Provider implements it.
type Recorder interface {
	ObserveReconciliation(source string)
	ObserveEvaluation(complete bool, d time.Duration)
	ObserveAbsentIndex(name string)
	ObserveBatch(size int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReconciliation(string) {}
func (nopRecorder) ObserveEvaluation(bool, time.Duration) {}
func (nopRecorder) ObserveAbsentIndex(string) {}
func (nopRecorder) ObserveBatch(int) {}

// EvaluationRequest is one patient's raw input.
type EvaluationRequest struct {
	PatientID    string                       `json:"patient_id,omitempty" validate:"omitempty,max=128"`
	Sex          Sex                          `json:"sex" validate:"required,oneof=male female unknown"`
	Age          int                          `json:"age" validate:"gte=0,lte=130"`
	Observations map[string]RawObservationSet `json:"observations" validate:"required"`
	Strict       bool                         `json:"strict,omitempty"`
}

// Evaluation is the outbound bundle for one patient.
type Evaluation struct {
	ID            uuid.UUID                `json:"id"`
	PatientID     string                   `json:"patient_id,omitempty"`
	Sex           Sex                      `json:"sex"`
	Age           int                      `json:"age"`
	Measurements  ReconciledMeasurementSet `json:"measurements"`
	Result        AnthropometricResult     `json:"result"`
	Complete      bool                     `json:"complete"`
	Missing       []string                 `json:"missing,omitempty"`
	PendingThird  []string                 `json:"pending_third,omitempty"`
	AbsentIndices []string                 `json:"absent_indices,omitempty"`
	EvaluatedAt   time.Time                `json:"evaluated_at"`
}

// ServiceConfig bounds batch evaluation.
type ServiceConfig struct {
	BatchWorkers int
	BatchMaxSize int
}

type Service struct {
	catalog  *Catalog
	cfg      ServiceConfig
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(catalog *Catalog, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 1
	}
	if cfg.BatchMaxSize <= 0 {
		cfg.BatchMaxSize = 500
	}
	return &Service{
		catalog:  catalog,
		cfg:      cfg,
		recorder: nopRecorder{},
		logger:   logger.With().Str("component", "anthropometry").Logger(),
		now:      time.Now,
	}
}

// SetRecorder attaches a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// Catalog returns the service's field catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// ReconcileField reconciles one catalog field.
func (s *Service) ReconcileField(key string, obs RawObservationSet) (ReconciledMeasurement, error) {
	f, ok := s.catalog.Field(key)
	if !ok {
		return ReconciledMeasurement{}, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	m := Reconcile(f.Category, obs)
	s.recorder.ObserveReconciliation(string(m.Source))
	return m, nil
}

// Enter applies one observation to a field's state.
func (s *Service) Enter(key string, prev FieldEntry, slot int, raw string) (FieldEntry, error) {
	f, ok := s.catalog.Field(key)
	if !ok {
		return prev, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	next, err := Enter(f.Category, prev, slot, raw)
	if err != nil {
		return prev, err
	}
	s.recorder.ObserveReconciliation(string(next.Result.Source))
	return next, nil
}

// Evaluate reconciles every field and computes the index bundle. In strict
// mode an incomplete set is rejected with an *IncompleteSetError.
func (s *Service) Evaluate(ctx context.Context, req *EvaluationRequest) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := s.now()

	set, err := ReconcileAll(s.catalog, req.Observations)
	if err != nil {
		return nil, err
	}
	for _, m := range set {
		s.recorder.ObserveReconciliation(string(m.Source))
	}

	ev := &Evaluation{
		ID:           uuid.New(),
		PatientID:    req.PatientID,
		Sex:          req.Sex,
		Age:          req.Age,
		Measurements: set,
		Complete:     set.Complete(),
		Missing:      set.Missing(),
		PendingThird: set.Pending(),
		EvaluatedAt:  start.UTC(),
	}

	if req.Strict {
		if err := set.RequireComplete(); err != nil {
			s.recorder.ObserveEvaluation(false, s.now().Sub(start))
			return nil, err
		}
	}

	ev.Result = Compute(set, req.Sex, req.Age)
	ev.AbsentIndices = ev.Result.AbsentIndices()
	for _, name := range ev.AbsentIndices {
		s.recorder.ObserveAbsentIndex(name)
	}
	s.recorder.ObserveEvaluation(ev.Complete, s.now().Sub(start))

	evt := s.logger.Debug()
	if !ev.Complete {
		evt = s.logger.Info()
	}
	evt.Str("evaluation_id", ev.ID.String()).
		Str("patient_id", req.PatientID).
		Bool("complete", ev.Complete).
		Int("missing", len(ev.Missing)).
		Int("pending_third", len(ev.PendingThird)).
		Int("absent_indices", len(ev.AbsentIndices)).
		Msg("evaluation computed")

	return ev, nil
}

// BatchItem is the outcome of one request in a batch. Exactly one of
// Evaluation and Error is set.
type BatchItem struct {
	Index      int         `json:"index"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// EvaluateBatch evaluates independent patients concurrently. A failing item
// does not fail the batch; only cancellation of ctx does. Output order
// matches input order.
func (s *Service) EvaluateBatch(ctx context.Context, reqs []*EvaluationRequest) ([]BatchItem, error) {
	if len(reqs) > s.cfg.BatchMaxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(reqs), s.cfg.BatchMaxSize)
	}
	s.recorder.ObserveBatch(len(reqs))

	out := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchWorkers)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i].Index = i
			if req == nil {
				out[i].Error = "empty request"
				return nil
			}
			ev, err := s.Evaluate(gctx, req)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				out[i].Error = err.Error()
				return nil
			}
			out[i].Evaluation = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate batch: %w", err)
	}

	s.logger.Debug().Int("size", len(reqs)).Msg("batch evaluated")
	return out, nil
}
