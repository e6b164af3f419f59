// Package repositorytest provides an in-memory repository for tests.
package repositorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ponto.service/internal/core/model"
	"ponto.service/internal/core/protocol"
	"ponto.service/internal/ports/repository"
)

var _ repository.Repository = (*Memory)(nil)

// Memory implements repository.Repository on maps. Fields may be seeded
// directly before use; the Err fields inject failures.
type Memory struct {
	mu sync.Mutex

	Employees map[string]model.Employee
	Units     map[string]model.Unit
	Punches   []model.Punch
	Mappings  map[string]protocol.Tuple
	Location  *time.Location

	GetPunchErr error
	MappingErr  error
}

func NewMemory() *Memory {
	return &Memory{
		Employees: map[string]model.Employee{},
		Units:     map[string]model.Unit{},
		Mappings:  map[string]protocol.Tuple{},
		Location:  time.UTC,
	}
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*model.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) GetUnit(_ context.Context, id string) (*model.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Units[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) CreatePunch(_ context.Context, p *model.Punch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *p
	stored.ID = int64(len(m.Punches) + 1)
	m.Punches = append(m.Punches, stored)
	return stored.ID, nil
}

func (m *Memory) GetPunch(_ context.Context, id int64) (*model.Punch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetPunchErr != nil {
		return nil, m.GetPunchErr
	}
	for _, p := range m.Punches {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrPunchNotFound
}

func (m *Memory) HasPunch(_ context.Context, employeeID string, t model.PunchType, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Punches {
		if p.EmployeeID == employeeID && p.Type == t && within(p.Timestamp, from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListPunches(_ context.Context, employeeID, unitID string, from, to time.Time) ([]model.Punch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Punch
	for _, p := range m.Punches {
		if p.EmployeeID != employeeID || (unitID != "" && p.UnitID != unitID) || !within(p.Timestamp, from, to) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) UpdatePayrollStatus(_ context.Context, id int64, status model.ProcessingStatus, retryCount int) error {
	return m.update(id, func(p *model.Punch) {
		p.PayrollStatus = status
		p.PayrollRetryCount = retryCount
	})
}

func (m *Memory) UpdateReceiptStatus(_ context.Context, id int64, status model.ProcessingStatus, retryCount int) error {
	return m.update(id, func(p *model.Punch) {
		p.ReceiptStatus = status
		p.ReceiptRetryCount = retryCount
	})
}

func (m *Memory) update(id int64, fn func(*model.Punch)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Punches {
		if m.Punches[i].ID == id {
			fn(&m.Punches[i])
			return nil
		}
	}
	return repository.ErrPunchNotFound
}

// Punch returns a copy of the stored punch, for assertions.
func (m *Memory) Punch(id int64) model.Punch {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Punches {
		if p.ID == id {
			return p
		}
	}
	return model.Punch{}
}

func (m *Memory) SaveProtocolMapping(_ context.Context, hash string, t protocol.Tuple) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MappingErr != nil {
		return m.MappingErr
	}
	if _, ok := m.Mappings[hash]; !ok {
		m.Mappings[hash] = t
	}
	return nil
}

func (m *Memory) FindProtocolMapping(_ context.Context, hash string) (*protocol.Tuple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Mappings[hash]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) FindTupleByPunchProtocol(_ context.Context, hash string) (*protocol.Tuple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Punch
	for i := range m.Punches {
		p := &m.Punches[i]
		if strings.Contains(p.Protocol, hash) && (found == nil || p.Timestamp.After(found.Timestamp)) {
			found = p
		}
	}
	if found == nil {
		return nil, nil
	}
	return &protocol.Tuple{
		EmployeeID: found.EmployeeID,
		UnitID:     found.UnitID,
		YearMonth:  found.Timestamp.In(m.Location).Format("2006-01"),
	}, nil
}

func (m *Memory) ActivePairs(_ context.Context, since time.Time, limit int) ([]protocol.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[protocol.Pair]time.Time{}
	for _, p := range m.Punches {
		if p.Timestamp.Before(since) {
			continue
		}
		key := protocol.Pair{EmployeeID: p.EmployeeID, UnitID: p.UnitID}
		if p.Timestamp.After(latest[key]) {
			latest[key] = p.Timestamp
		}
	}
	pairs := make([]protocol.Pair, 0, len(latest))
	for k := range latest {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool { return latest[pairs[i]].After(latest[pairs[j]]) })
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

func (m *Memory) EmployeeIDs(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.Employees, limit), nil
}

func (m *Memory) UnitIDs(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.Units, limit), nil
}

func sortedKeys[V any](in map[string]V, limit int) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
