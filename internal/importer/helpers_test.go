package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-registry-api/internal/models"
)

var fixedNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func curp(i int) string {
	return fmt.Sprintf("GORJ140310HDFMRN%02d", i)
}

func validRecord(i int) map[string]string {
	return map[string]string{
		ColGivenName:                          "Juan",
		ColPaternalSurname:                    "Gómez",
		ColMaternalSurname:                    "Ruiz",
		ColBirthDate:                          "2014-03-10",
		ColCURP:                               curp(i),
		ColLevel:                              "Primaria",
		ColGrade:                              "4",
		ColSection:                            "B",
		ColStatus:                             "Activo",
		ContactColumn(1, contactName):         "Pedro Gómez",
		ContactColumn(1, contactPhone):        "55 1234 5678",
		ContactColumn(1, contactRelationship): "Padre",
	}
}

func with(record map[string]string, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(record))
	for k, v := range record {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func buildRows(t *testing.T, records ...map[string]string) []Row {
	t.Helper()
	cols := Columns()
	cells := [][]string{cols}
	for _, record := range records {
		line := make([]string, len(cols))
		for i, col := range cols {
			line[i] = record[col]
		}
		cells = append(cells, line)
	}
	rows, err := ParseRows(cells)
	require.NoError(t, err)
	return rows
}

// memoryStore enforces the same unique keys as the students table.
type memoryStore struct {
	mu       sync.Mutex
	students []models.Student
	curps    map[string]bool
	codes    map[string]bool

	createCalls  int
	beforeCreate func(s *memoryStore, call int)
	failWith     map[int]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{curps: map[string]bool{}, codes: map[string]bool{}}
}

func (s *memoryStore) ListCURPs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.curps))
	for c := range s.curps {
		out = append(out, c)
	}
	return out, nil
}

func (s *memoryStore) LastRegistrationSequence(ctx context.Context, prefix string, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stem := prefix + strconv.Itoa(year)
	last := 0
	for code := range s.codes {
		if !strings.HasPrefix(code, stem) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(code, stem)); err == nil && n > last {
			last = n
		}
	}
	return last, nil
}

func (s *memoryStore) Create(ctx context.Context, student *models.Student) error {
	s.createCalls++
	if s.beforeCreate != nil {
		s.beforeCreate(s, s.createCalls)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := s.failWith[s.createCalls]; ok {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curps[student.CURP] {
		return models.ErrDuplicateCURP
	}
	if s.codes[student.RegistrationCode] {
		return models.ErrDuplicateRegistrationCode
	}
	student.ID = uuid.NewString()
	for i := range student.Contacts {
		student.Contacts[i].ID = uuid.NewString()
		student.Contacts[i].StudentID = student.ID
	}
	s.curps[student.CURP] = true
	s.codes[student.RegistrationCode] = true
	s.students = append(s.students, *student)
	return nil
}

// insert simulates a concurrent writer.
func (s *memoryStore) insert(curp, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if curp != "" {
		s.curps[curp] = true
	}
	if code != "" {
		s.codes[code] = true
	}
}
