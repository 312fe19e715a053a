package anthropometry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu          sync.Mutex
	sources     map[string]int
	evaluations map[bool]int
	absent      map[string]int
	batches     []int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		sources:     map[string]int{},
		evaluations: map[bool]int{},
		absent:      map[string]int{},
	}
}

func (r *fakeRecorder) ObserveReconciliation(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source]++
}

func (r *fakeRecorder) ObserveEvaluation(complete bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluations[complete]++
}

func (r *fakeRecorder) ObserveAbsentIndex(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.absent[name]++
}

func (r *fakeRecorder) ObserveBatch(size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, size)
}

func newTestService() (*Service, *fakeRecorder) {
	svc := NewService(DefaultCatalog(), ServiceConfig{BatchWorkers: 4, BatchMaxSize: 20}, zerolog.Nop())
	rec := newFakeRecorder()
	svc.SetRecorder(rec)
	return svc, rec
}

// fullObservations enters every catalog field twice with agreeing readings.
func fullObservations() map[string]RawObservationSet {
	obs := make(map[string]RawObservationSet)
	for k, m := range referenceSubject() {
		v := fmt.Sprint(*m.Value)
		obs[k] = Observations(v, v)
	}
	for _, k := range DefaultCatalog().Keys() {
		if _, ok := obs[k]; !ok {
			obs[k] = Observations("10", "10")
		}
	}
	return obs
}

func TestService_EvaluateComplete(t *testing.T) {
	svc, rec := newTestService()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	ev, err := svc.Evaluate(context.Background(), &EvaluationRequest{
		PatientID:    "p-7",
		Sex:          SexFemale,
		Age:          30,
		Observations: fullObservations(),
		Strict:       true,
	})
	require.NoError(t, err)

	assert.True(t, ev.Complete)
	assert.Empty(t, ev.Missing)
	assert.Empty(t, ev.PendingThird)
	assert.Empty(t, ev.AbsentIndices)
	assert.Equal(t, fixed, ev.EvaluatedAt)
	assert.Equal(t, "p-7", ev.PatientID)
	assert.NotEqual(t, [16]byte{}, [16]byte(ev.ID))
	assertIndex(t, "bmi", 24.21875, ev.Result.BMI)

	assert.Equal(t, 43, rec.sources[string(SourceAveraged)])
	assert.Equal(t, 1, rec.evaluations[true])
}

func TestService_EvaluateIncomplete(t *testing.T) {
	svc, rec := newTestService()
	obs := map[string]RawObservationSet{
		KeyBodyMass:    Observations("62", "62"),
		KeyHeight:      Observations("160", "160"),
		KeyTricepsFold: Observations("10", "14"),
	}

	ev, err := svc.Evaluate(context.Background(), &EvaluationRequest{Sex: SexMale, Age: 40, Observations: obs})
	require.NoError(t, err)

	assert.False(t, ev.Complete)
	assert.Equal(t, []string{KeyTricepsFold}, ev.PendingThird)
	assert.Len(t, ev.Missing, 40)
	assert.NotNil(t, ev.Result.BMI)
	assert.Contains(t, ev.AbsentIndices, "body_density")
	assert.Equal(t, 1, rec.absent["body_density"])
	assert.Equal(t, 1, rec.evaluations[false])
}

func TestService_EvaluateStrictRejectsIncomplete(t *testing.T) {
	svc, _ := newTestService()
	obs := fullObservations()
	obs[KeyWaist] = Observations("70", "80")

	_, err := svc.Evaluate(context.Background(), &EvaluationRequest{Sex: SexFemale, Age: 30, Observations: obs, Strict: true})
	var inc *IncompleteSetError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []string{KeyWaist}, inc.PendingThird)
	assert.Empty(t, inc.Missing)
}

func TestService_EvaluateUnknownField(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Evaluate(context.Background(), &EvaluationRequest{
		Sex:          SexFemale,
		Observations: map[string]RawObservationSet{"weight": {}},
	})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestService_EvaluateCanceled(t *testing.T) {
	svc, _ := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Evaluate(ctx, &EvaluationRequest{Sex: SexFemale})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_ReconcileField(t *testing.T) {
	svc, rec := newTestService()

	m, err := svc.ReconcileField(KeyTricepsFold, Observations("10", "10.5"))
	require.NoError(t, err)
	assert.Equal(t, 10.25, *m.Value)
	assert.Equal(t, 1, rec.sources[string(SourceAveraged)])

	_, err = svc.ReconcileField("weight", Observations("1", "1"))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestService_Enter(t *testing.T) {
	svc, _ := newTestService()

	st, err := svc.Enter(KeyHeight, FieldEntry{}, 1, "170")
	require.NoError(t, err)
	st, err = svc.Enter(KeyHeight, st, 2, "170,4")
	require.NoError(t, err)
	assert.Equal(t, SourceAveraged, st.Result.Source)
	assert.Equal(t, 170.2, *st.Result.Value)

	_, err = svc.Enter("weight", st, 1, "1")
	assert.ErrorIs(t, err, ErrUnknownField)

	same, err := svc.Enter(KeyHeight, st, 0, "1")
	assert.ErrorIs(t, err, ErrInvalidSlot)
	assert.Equal(t, st, same)
}

func TestService_EvaluateBatch(t *testing.T) {
	svc, rec := newTestService()
	reqs := []*EvaluationRequest{
		{PatientID: "a", Sex: SexFemale, Age: 30, Observations: fullObservations()},
		{PatientID: "b", Sex: SexMale, Age: 30, Observations: map[string]RawObservationSet{"weight": {}}},
		nil,
		{PatientID: "d", Sex: SexUnknown, Age: 8, Observations: map[string]RawObservationSet{}, Strict: true},
		{PatientID: "e", Sex: SexMale, Age: 55, Observations: map[string]RawObservationSet{}},
	}

	items, err := svc.EvaluateBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, items, 5)

	for i, it := range items {
		assert.Equal(t, i, it.Index)
	}
	assert.Equal(t, "a", items[0].Evaluation.PatientID)
	assert.True(t, items[0].Evaluation.Complete)
	assert.Contains(t, items[1].Error, "unknown measurement field")
	assert.Equal(t, "empty request", items[2].Error)
	assert.Contains(t, items[3].Error, "incomplete")
	assert.Nil(t, items[3].Evaluation)
	assert.Equal(t, "e", items[4].Evaluation.PatientID)

	assert.Equal(t, []int{5}, rec.batches)
}

func TestService_EvaluateBatchTooLarge(t *testing.T) {
	svc := NewService(DefaultCatalog(), ServiceConfig{BatchWorkers: 2, BatchMaxSize: 2}, zerolog.Nop())
	reqs := []*EvaluationRequest{{Sex: SexMale}, {Sex: SexMale}, {Sex: SexMale}}

	_, err := svc.EvaluateBatch(context.Background(), reqs)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestService_EvaluateBatchCanceled(t *testing.T) {
	svc, _ := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.EvaluateBatch(ctx, []*EvaluationRequest{{Sex: SexMale, Observations: map[string]RawObservationSet{}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(DefaultCatalog(), ServiceConfig{}, zerolog.Nop())
	assert.Equal(t, 1, svc.cfg.BatchWorkers)
	assert.Equal(t, 500, svc.cfg.BatchMaxSize)
	svc.SetRecorder(nil)
	_, err := svc.ReconcileField(KeyHeight, Observations("1", "1"))
	assert.NoError(t, err)
}
