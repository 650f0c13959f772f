package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voltlog/voltlog/internal/models"
)

// spyStore 记录所有调用的 RemoteStore 假实现
type spyStore struct {
	calls []string

	vehicleVersions []VehicleVersion
	recordVersions  []RecordVersion
	remoteVehicles  []VehicleRow
	remoteRecords   []RecordRow

	upsertedVehicles  [][]VehicleRow
	upsertedRecords   [][]RecordRow
	deletedRecordIDs  [][]string
	deletedVehicleIDs [][]string

	failOn string
}

func (s *spyStore) call(name string) error {
	s.calls = append(s.calls, name)
	if s.failOn == name {
		return fmt.Errorf("%s: connection refused", name)
	}
	return nil
}

func (s *spyStore) DeleteRecords(_ context.Context, ids []string) error {
	s.deletedRecordIDs = append(s.deletedRecordIDs, ids)
	return s.call("DeleteRecords")
}

func (s *spyStore) DeleteVehicles(_ context.Context, ids []string) error {
	s.deletedVehicleIDs = append(s.deletedVehicleIDs, ids)
	return s.call("DeleteVehicles")
}

func (s *spyStore) VehicleVersions(_ context.Context) ([]VehicleVersion, error) {
	return s.vehicleVersions, s.call("VehicleVersions")
}

func (s *spyStore) RecordVersions(_ context.Context) ([]RecordVersion, error) {
	return s.recordVersions, s.call("RecordVersions")
}

func (s *spyStore) UpsertVehicles(_ context.Context, rows []VehicleRow) error {
	s.upsertedVehicles = append(s.upsertedVehicles, rows)
	return s.call("UpsertVehicles")
}

func (s *spyStore) UpsertRecords(_ context.Context, rows []RecordRow) error {
	s.upsertedRecords = append(s.upsertedRecords, rows)
	return s.call("UpsertRecords")
}

func (s *spyStore) FetchVehicles(_ context.Context) ([]VehicleRow, error) {
	return s.remoteVehicles, s.call("FetchVehicles")
}

func (s *spyStore) FetchRecords(_ context.Context) ([]RecordRow, error) {
	return s.remoteRecords, s.call("FetchRecords")
}

var testConfig = Config{ProjectURL: "https://sync.example.com", APIKey: "secret"}

func newTestCoordinator(spy *spyStore) *Coordinator {
	c := NewCoordinator(spy, zap.NewNop())
	c.newID = func() string { return "minted-id" }
	c.now = func() int64 { return 1750000000000 }
	return c
}

func localVehicle() models.Vehicle {
	return models.Vehicle{
		ID:              "local-x",
		Name:            "Model 3",
		BatteryCapacity: 60,
		LicensePlate:    "ABC123",
		UpdatedAt:       2000,
	}
}

func TestSyncConfigMissing(t *testing.T) {
	spy := &spyStore{}
	c := newTestCoordinator(spy)

	_, err := c.Sync(context.Background(), Config{}, models.AppState{})
	assert.ErrorIs(t, err, ErrConfigMissing)
	assert.Empty(t, spy.calls, "no remote call may happen before preconditions pass")
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestSyncMissingPlate(t *testing.T) {
	spy := &spyStore{}
	c := newTestCoordinator(spy)

	state := models.AppState{Vehicles: []models.Vehicle{
		{ID: "a", Name: "Leaf"},
		{ID: "b", Name: "Zoe", LicensePlate: "ZOE001"},
		{ID: "c", Name: "ID.3"},
	}}

	_, err := c.Sync(context.Background(), testConfig, state)
	var missing *MissingPlateError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Leaf", "ID.3"}, missing.Names)
	assert.Empty(t, spy.calls)
}

func TestSyncIdentityStability(t *testing.T) {
	spy := &spyStore{
		remoteVehicles: []VehicleRow{
			{ID: "other-device-id", Name: "Model 3", LicensePlate: "ABC123", BatteryCapacity: 60, UpdatedAt: 3000},
			{ID: "remote-only", Name: "Taycan", LicensePlate: "NEW999", BatteryCapacity: 93, UpdatedAt: 1000},
		},
	}
	c := newTestCoordinator(spy)

	state := models.AppState{Vehicles: []models.Vehicle{localVehicle()}}
	outcome, err := c.Sync(context.Background(), testConfig, state)
	require.NoError(t, err)
	require.Len(t, outcome.Vehicles, 2)

	// 已知车牌沿用本地 ID，新车牌铸造新 ID
	byPlate := make(map[string]models.Vehicle)
	for _, v := range outcome.Vehicles {
		byPlate[v.LicensePlate] = v
	}
	assert.Equal(t, "local-x", byPlate["ABC123"].ID)
	assert.Equal(t, "minted-id", byPlate["NEW999"].ID)
	// 车辆属性以远端为准
	assert.Equal(t, int64(3000), byPlate["ABC123"].UpdatedAt)
}

func TestSyncSelectivePush(t *testing.T) {
	spy := &spyStore{
		vehicleVersions: []VehicleVersion{
			{LicensePlate: "ABC123", UpdatedAt: 2000}, // 与本地相同，不推
			{LicensePlate: "OLD111", UpdatedAt: 500},  // 远端较旧，推
		},
		recordVersions: []RecordVersion{
			{ID: "r-same", UpdatedAt: 900},
			{ID: "r-stale", UpdatedAt: 100},
		},
	}
	c := newTestCoordinator(spy)

	state := models.AppState{
		Vehicles: []models.Vehicle{
			localVehicle(),
			{ID: "local-y", Name: "Kona", LicensePlate: "OLD111", UpdatedAt: 1500},
			{ID: "local-z", Name: "EQA", LicensePlate: "FRESH1", UpdatedAt: 10},
		},
		Records: []models.ChargingRecord{
			{ID: "r-same", VehicleID: "local-x", UpdatedAt: 900, StartTime: time.Now()},
			{ID: "r-stale", VehicleID: "local-y", UpdatedAt: 800, StartTime: time.Now()},
			{ID: "r-new", VehicleID: "local-z", UpdatedAt: 50, StartTime: time.Now()},
		},
	}

	_, err := c.Sync(context.Background(), testConfig, state)
	require.NoError(t, err)

	require.Len(t, spy.upsertedVehicles, 1)
	var plates []string
	for _, row := range spy.upsertedVehicles[0] {
		plates = append(plates, row.LicensePlate)
	}
	assert.ElementsMatch(t, []string{"OLD111", "FRESH1"}, plates)

	require.Len(t, spy.upsertedRecords, 1)
	var ids []string
	for _, row := range spy.upsertedRecords[0] {
		ids = append(ids, row.ID)
	}
	// 严格大于才推：r-same 的版本与远端一致，不推
	assert.ElementsMatch(t, []string{"r-stale", "r-new"}, ids)
}

func TestSyncNoUpsertWhenNothingNewer(t *testing.T) {
	spy := &spyStore{
		vehicleVersions: []VehicleVersion{{LicensePlate: "ABC123", UpdatedAt: 9999}},
	}
	c := newTestCoordinator(spy)

	state := models.AppState{Vehicles: []models.Vehicle{localVehicle()}}
	_, err := c.Sync(context.Background(), testConfig, state)
	require.NoError(t, err)
	assert.Empty(t, spy.upsertedVehicles)
	assert.Empty(t, spy.upsertedRecords)
}

func TestSyncDeletionPropagationAndQueueClear(t *testing.T) {
	spy := &spyStore{}
	c := newTestCoordinator(spy)

	state := models.AppState{
		Vehicles:          []models.Vehicle{localVehicle()},
		DeletedRecordIDs:  []string{"dead-1", "dead-2"},
		DeletedVehicleIDs: []string{"gone-1"},
	}

	outcome, err := c.Sync(context.Background(), testConfig, state)
	require.NoError(t, err)

	require.Len(t, spy.deletedRecordIDs, 1)
	assert.Equal(t, []string{"dead-1", "dead-2"}, spy.deletedRecordIDs[0])
	require.Len(t, spy.deletedVehicleIDs, 1)
	assert.Equal(t, []string{"gone-1"}, spy.deletedVehicleIDs[0])

	assert.Empty(t, outcome.DeletedRecordIDs)
	assert.Empty(t, outcome.DeletedVehicleIDs)
	assert.NotNil(t, outcome.DeletedRecordIDs)
	assert.NotNil(t, outcome.DeletedVehicleIDs)
}

func TestSyncFailureAbortsWithoutOutcome(t *testing.T) {
	steps := []struct {
		failOn string
		step   string
	}{
		{failOn: "DeleteRecords", step: "delete records"},
		{failOn: "VehicleVersions", step: "fetch vehicle versions"},
		{failOn: "UpsertVehicles", step: "push vehicles"},
		{failOn: "RecordVersions", step: "fetch record versions"},
		{failOn: "FetchVehicles", step: "pull vehicles"},
		{failOn: "FetchRecords", step: "pull records"},
	}

	for _, tt := range steps {
		t.Run(tt.failOn, func(t *testing.T) {
			spy := &spyStore{failOn: tt.failOn}
			c := newTestCoordinator(spy)

			state := models.AppState{
				Vehicles:         []models.Vehicle{localVehicle()},
				DeletedRecordIDs: []string{"dead-1"},
			}

			outcome, err := c.Sync(context.Background(), testConfig, state)
			assert.Nil(t, outcome)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.step, stepErr.Step)

			// 失败后回到 idle，可立即重试
			assert.Equal(t, PhaseIdle, c.Phase())
		})
	}
}

func TestSyncDropsRecordsWithoutMergedVehicle(t *testing.T) {
	spy := &spyStore{
		remoteVehicles: []VehicleRow{
			{ID: "v", LicensePlate: "ABC123", BatteryCapacity: 60},
		},
		remoteRecords: []RecordRow{
			{ID: "keep", LicensePlate: "ABC123", StartTime: time.Now()},
			{ID: "drop", LicensePlate: "UNKNOWN", StartTime: time.Now()},
		},
	}
	c := newTestCoordinator(spy)

	state := models.AppState{Vehicles: []models.Vehicle{localVehicle()}}
	outcome, err := c.Sync(context.Background(), testConfig, state)
	require.NoError(t, err)

	require.Len(t, outcome.Records, 1)
	assert.Equal(t, "keep", outcome.Records[0].ID)
	assert.Equal(t, "local-x", outcome.Records[0].VehicleID)
}

func TestSyncRecomputesDerivedFieldsOnMerge(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	spy := &spyStore{
		remoteVehicles: []VehicleRow{
			{ID: "v", LicensePlate: "ABC123", BatteryCapacity: 60},
		},
		remoteRecords: []RecordRow{
			{
				ID: "r", LicensePlate: "ABC123",
				StartTime: start, EndTime: &end,
				StartSoC: 20, EndSoC: 80, EnergyCharged: 40, PricePerKwh: 1.5,
				// 远端的派生列故意给错，合并后必须被重算覆盖
				TheoreticalEnergy: 999, EfficiencyLossPct: 999, DurationMinutes: 999,
			},
		},
	}
	c := newTestCoordinator(spy)

	state := models.AppState{Vehicles: []models.Vehicle{localVehicle()}}
	outcome, err := c.Sync(context.Background(), testConfig, state)
	require.NoError(t, err)

	require.Len(t, outcome.Records, 1)
	r := outcome.Records[0]
	assert.Equal(t, 36.00, r.TheoreticalEnergy)
	assert.Equal(t, 10.00, r.EfficiencyLossPct)
	assert.Equal(t, 90, r.DurationMinutes)
	assert.Equal(t, 60.00, r.TotalCost)
}

func TestSyncSequentialRunsAfterFailure(t *testing.T) {
	spy := &spyStore{failOn: "FetchRecords"}
	c := newTestCoordinator(spy)
	state := models.AppState{Vehicles: []models.Vehicle{localVehicle()}}

	_, err := c.Sync(context.Background(), testConfig, state)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSyncInFlight))

	spy.failOn = ""
	_, err = c.Sync(context.Background(), testConfig, state)
	assert.NoError(t, err)
}
