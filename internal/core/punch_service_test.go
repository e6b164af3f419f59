package core

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ponto.service/internal/core/geofence"
	"ponto.service/internal/core/model"
	"ponto.service/internal/core/protocol"
	"ponto.service/internal/ports/repository/repositorytest"
	"ponto.service/internal/ports/messaging"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func newPunchFixture() (*PunchService, *repositorytest.Memory, *fakeProducer, *fakeEvidence) {
	repo := repositorytest.NewMemory()
	repo.Employees["emp-1"] = model.Employee{ID: "emp-1", Name: "Ana", Email: "ana@example.com"}
	repo.Units["unit-1"] = model.Unit{
		ID:                  "unit-1",
		Latitude:            ptr(-23.5505),
		Longitude:           ptr(-46.6333),
		AllowedRadiusMeters: ptr(100),
	}
	producer := &fakeProducer{}
	evidence := newFakeEvidence()
	svc := NewPunchService(repo, producer, evidence, saoPaulo)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 11, 0, 0, 0, time.UTC) }
	return svc, repo, producer, evidence
}

func submission() Submission {
	return Submission{
		EmployeeID: "emp-1",
		UnitID:     "unit-1",
		Type:       model.PunchEntry,
		Position:   geofence.Point{Latitude: -23.5506, Longitude: -46.6334},
		DeviceID:   "device-1",
		Selfie:     strings.NewReader("jpeg"),
	}
}

func TestRecordPunchStoresAndPublishes(t *testing.T) {
	svc, repo, producer, evidence := newPunchFixture()

	punch, err := svc.RecordPunch(context.Background(), submission())
	require.NoError(t, err)

	tuple := protocol.Tuple{EmployeeID: "emp-1", UnitID: "unit-1", YearMonth: "2025-03"}
	assert.Equal(t, int64(1), punch.ID)
	assert.Equal(t, protocol.Encode(tuple), punch.Protocol)
	assert.Equal(t, model.StatusPending, punch.PayrollStatus)
	assert.Equal(t, []byte("jpeg"), evidence.stored[punch.SelfieRef])
	assert.Equal(t, tuple, repo.Mappings[protocol.ShortHash(tuple)])

	require.Len(t, producer.payroll, 1)
	require.Len(t, producer.receipt, 1)
	event := producer.payroll[0].(messaging.PunchRecordedEvent)
	assert.Equal(t, punch.ID, event.PunchID)
	assert.Equal(t, punch.Protocol, event.Protocol)
}

func TestRecordPunchUsesLocalMonthForProtocol(t *testing.T) {
	svc, _, _, _ := newPunchFixture()
	sub := submission()
	// 01:30 UTC on April 1st is still March 31st in São Paulo.
	sub.Timestamp = time.Date(2025, 4, 1, 1, 30, 0, 0, time.UTC)

	punch, err := svc.RecordPunch(context.Background(), sub)
	require.NoError(t, err)

	want := protocol.Encode(protocol.Tuple{EmployeeID: "emp-1", UnitID: "unit-1", YearMonth: "2025-03"})
	assert.Equal(t, want, punch.Protocol)
}

func TestRecordPunchRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Submission)
		want   error
	}{
		{"unknown employee", func(s *Submission) { s.EmployeeID = "ghost" }, ErrEmployeeNotFound},
		{"unknown unit", func(s *Submission) { s.UnitID = "nowhere" }, ErrUnitNotFound},
		{"missing selfie", func(s *Submission) { s.Selfie = nil }, ErrMissingSelfie},
		{"outside geofence", func(s *Submission) { s.Position = geofence.Point{Latitude: -23.5460, Longitude: -46.6333} }, ErrOutsideGeofence},
		{"NaN position", func(s *Submission) { s.Position = geofence.Point{Latitude: math.NaN(), Longitude: math.NaN()} }, ErrInvalidPosition},
		{"infinite position without unit", func(s *Submission) {
			s.UnitID = ""
			s.Position = geofence.Point{Latitude: math.Inf(1), Longitude: 0}
		}, ErrInvalidPosition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, producer, _ := newPunchFixture()
			sub := submission()
			tt.mutate(&sub)

			_, err := svc.RecordPunch(context.Background(), sub)

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, repo.Punches)
			assert.Empty(t, producer.payroll)
		})
	}
}

func TestRecordPunchGeofenceErrorCarriesResult(t *testing.T) {
	svc, _, _, _ := newPunchFixture()
	sub := submission()
	sub.Position = geofence.Point{Latitude: -23.5460, Longitude: -46.6333}

	_, err := svc.RecordPunch(context.Background(), sub)

	var geoErr *GeofenceError
	require.True(t, errors.As(err, &geoErr))
	assert.False(t, geoErr.Result.Valid)
	require.NotNil(t, geoErr.Result.DistanceMeters)
	assert.Greater(t, *geoErr.Result.DistanceMeters, int64(130))
}

func TestRecordPunchWithoutUnitSkipsGeofence(t *testing.T) {
	svc, _, _, _ := newPunchFixture()
	sub := submission()
	sub.UnitID = ""
	sub.Position = geofence.Point{Latitude: 0, Longitude: 0}

	punch, err := svc.RecordPunch(context.Background(), sub)
	require.NoError(t, err)
	assert.Empty(t, punch.UnitID)
}

func TestRecordPunchRejectsSameTypeTwicePerDay(t *testing.T) {
	svc, _, _, _ := newPunchFixture()

	_, err := svc.RecordPunch(context.Background(), submission())
	require.NoError(t, err)

	_, err = svc.RecordPunch(context.Background(), submission())
	assert.ErrorIs(t, err, ErrAlreadyPunched)

	exit := submission()
	exit.Type = model.PunchExit
	_, err = svc.RecordPunch(context.Background(), exit)
	assert.NoError(t, err)
}

func TestRecordPunchSurvivesPublishAndMappingFailures(t *testing.T) {
	svc, repo, producer, _ := newPunchFixture()
	producer.err = errors.New("sqs down")
	repo.MappingErr = errors.New("db hiccup")

	punch, err := svc.RecordPunch(context.Background(), submission())

	require.NoError(t, err)
	assert.Len(t, repo.Punches, 1)
	assert.NotEmpty(t, punch.Protocol)
}
