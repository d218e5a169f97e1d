package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(store Store) *Engine {
	return NewEngine(store, Options{RegistrationPrefix: "UNI", Now: clock})
}

func TestEngineRowIsolation(t *testing.T) {
	store := newMemoryStore()
	rows := buildRows(t,
		validRecord(1),
		validRecord(2),
		with(validRecord(3), map[string]string{ColCURP: "BAD"}),
		validRecord(4),
		validRecord(5),
	)

	report, err := newEngine(store).Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, 4, report.AcceptedCount())
	assert.Equal(t, 1, report.RejectedCount())
	assert.Equal(t, 5, report.Processed())
	require.Len(t, report.Rejected(), 1)
	assert.Equal(t, 4, report.Rejected()[0].Row)
	assert.Equal(t, RuleIdentityDocument, report.Rejected()[0].Rule)

	accepted := report.Accepted()
	codes := make([]string, 0, len(accepted))
	for _, s := range accepted {
		codes = append(codes, s.RegistrationCode)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, fixedNow, s.EnrolledAt)
	}
	assert.Equal(t, []string{"UNI2024001", "UNI2024002", "UNI2024003", "UNI2024004"}, codes)
	assert.Equal(t, curp(5), accepted[3].CURP)
	assert.Len(t, store.students, 4)
}

func TestEngineIdempotentReimport(t *testing.T) {
	store := newMemoryStore()
	rows := buildRows(t, validRecord(1), with(validRecord(2), map[string]string{ColGrade: "9"}), validRecord(3))
	engine := newEngine(store)

	first, err := engine.Run(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, 2, first.AcceptedCount())

	second, err := engine.Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 0, second.AcceptedCount())
	assert.Equal(t, 3, second.RejectedCount())

	rejected := second.Rejected()
	assert.Equal(t, RuleDuplicate, rejected[0].Rule)
	assert.Equal(t, RuleVocabulary, rejected[1].Rule)
	assert.Equal(t, RuleDuplicate, rejected[2].Rule)
	assert.Len(t, store.students, 2)
}

func TestEngineIntraBatchDuplicate(t *testing.T) {
	store := newMemoryStore()
	rows := buildRows(t, validRecord(1), validRecord(2), validRecord(1), validRecord(1))

	report, err := newEngine(store).Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, 2, report.AcceptedCount())
	require.Equal(t, 2, report.RejectedCount())
	assert.Equal(t, []string{
		"row 4: curp: CURP duplicates row 2 of this file",
		"row 5: curp: CURP duplicates row 2 of this file",
	}, report.Messages())
}

func TestEngineRejectedRowHasNoSideEffects(t *testing.T) {
	store := newMemoryStore()
	rows := buildRows(t,
		with(validRecord(1), map[string]string{ContactColumn(1, contactPhone): ""}),
		validRecord(2),
	)

	report, err := newEngine(store).Run(context.Background(), rows)
	require.NoError(t, err)

	require.Equal(t, 1, report.RejectedCount())
	assert.Equal(t, RuleContactIncomplete, report.Rejected()[0].Rule)
	assert.Equal(t, 1, report.Rejected()[0].Contact)
	require.Len(t, store.students, 1)
	assert.Equal(t, "UNI2024001", store.students[0].RegistrationCode)
	assert.Equal(t, 1, store.createCalls)
}

func TestEngineSkipsBlankRows(t *testing.T) {
	rows := buildRows(t, validRecord(1), map[string]string{}, validRecord(2))

	report, err := newEngine(newMemoryStore()).Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, 2, report.AcceptedCount())
	assert.Equal(t, 0, report.RejectedCount())
	assert.Equal(t, []int{3}, report.Skipped())
}

func TestEngineContinuesSequenceFromStore(t *testing.T) {
	store := newMemoryStore()
	store.insert(curp(90), "UNI2024041")
	store.insert(curp(91), "UNI2023099")

	report, err := newEngine(store).Run(context.Background(), buildRows(t, validRecord(1)))
	require.NoError(t, err)
	require.Equal(t, 1, report.AcceptedCount())
	assert.Equal(t, "UNI2024042", report.Accepted()[0].RegistrationCode)
}

func TestEngineRetriesRegistrationCodeConflict(t *testing.T) {
	store := newMemoryStore()
	store.beforeCreate = func(s *memoryStore, call int) {
		if call == 1 {
			s.insert("", "UNI2024001")
		}
	}

	report, err := newEngine(store).Run(context.Background(), buildRows(t, validRecord(1), validRecord(2)))
	require.NoError(t, err)

	require.Equal(t, 2, report.AcceptedCount())
	assert.Equal(t, "UNI2024002", report.Accepted()[0].RegistrationCode)
	assert.Equal(t, "UNI2024003", report.Accepted()[1].RegistrationCode)
}

func TestEngineGivesUpAfterRetries(t *testing.T) {
	store := newMemoryStore()
	store.beforeCreate = func(s *memoryStore, call int) {
		seq, _ := s.LastRegistrationSequence(context.Background(), "UNI", 2024)
		s.insert("", "UNI2024"+[]string{"001", "002", "003", "004"}[seq])
	}

	report, err := newEngine(store).Run(context.Background(), buildRows(t, validRecord(1)))
	require.NoError(t, err)

	require.Equal(t, 1, report.RejectedCount())
	assert.Equal(t, RulePersistenceClash, report.Rejected()[0].Rule)
	assert.Equal(t, ColRegistrationCode, report.Rejected()[0].Field)
	assert.Equal(t, 3, store.createCalls)
}

func TestEngineConcurrentCURPConflict(t *testing.T) {
	store := newMemoryStore()
	store.beforeCreate = func(s *memoryStore, call int) {
		if call == 1 {
			s.insert(curp(1), "OTHER-1")
		}
	}

	report, err := newEngine(store).Run(context.Background(), buildRows(t, validRecord(1), validRecord(2), validRecord(1)))
	require.NoError(t, err)

	require.Equal(t, 1, report.AcceptedCount())
	assert.Equal(t, "UNI2024001", report.Accepted()[0].RegistrationCode)
	rejected := report.Rejected()
	require.Len(t, rejected, 2)
	assert.Equal(t, RulePersistenceClash, rejected[0].Rule)
	assert.Equal(t, 2, rejected[0].Row)
	assert.Equal(t, RuleDuplicate, rejected[1].Rule)
	assert.Contains(t, rejected[1].Message, "already registered")
}

func TestEngineStorageFailureDegradesToRejection(t *testing.T) {
	store := newMemoryStore()
	store.failWith = map[int]error{1: errors.New("connection reset")}

	report, err := newEngine(store).Run(context.Background(), buildRows(t, validRecord(1), validRecord(2)))
	require.NoError(t, err)

	require.Equal(t, 1, report.RejectedCount())
	assert.Equal(t, RuleStorageUnavailable, report.Rejected()[0].Rule)
	require.Equal(t, 1, report.AcceptedCount())
	assert.Equal(t, "UNI2024001", report.Accepted()[0].RegistrationCode)
}

func TestEngineCancellationKeepsCommittedRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newMemoryStore()
	store.beforeCreate = func(s *memoryStore, call int) {
		if call == 2 {
			cancel()
		}
	}

	report, err := newEngine(store).Run(ctx, buildRows(t, validRecord(1), validRecord(2), validRecord(3)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)

	assert.Equal(t, 1, report.AcceptedCount())
	assert.Equal(t, 0, report.RejectedCount())
	assert.Len(t, store.students, 1)
}

// slowStore fails its preload the way a database driver does once ctx ends.
type slowStore struct{ *memoryStore }

func (s slowStore) ListCURPs(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngineTimeoutDuringPreloadIsAbort(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	store := slowStore{newMemoryStore()}

	report, err := newEngine(store).Run(ctx, buildRows(t, validRecord(1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 0, report.AcceptedCount())
	assert.Empty(t, store.students)
}

func TestEnginePreloadFailureIsNotAbort(t *testing.T) {
	store := failingPreload{newMemoryStore()}

	_, err := newEngine(store).Run(context.Background(), buildRows(t, validRecord(1)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAborted)
}

type failingPreload struct{ *memoryStore }

func (s failingPreload) ListCURPs(ctx context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}
