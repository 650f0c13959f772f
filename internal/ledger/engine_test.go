package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltlog/voltlog/internal/models"
)

func at(hour int) time.Time {
	return time.Date(2025, 6, 1, hour, 0, 0, 0, time.UTC)
}

func atPtr(hour int) *time.Time {
	t := at(hour)
	return &t
}

func testVehicle(capacity float64) models.Vehicle {
	return models.Vehicle{
		ID:              "veh-1",
		Name:            "Model 3",
		BatteryCapacity: capacity,
		LicensePlate:    "ABC123",
	}
}

func TestReconcileCostRepair(t *testing.T) {
	tests := []struct {
		name     string
		record   models.ChargingRecord
		wantCost float64
	}{
		{
			name:     "zero cost recomputed from energy and price",
			record:   models.ChargingRecord{ID: "r1", VehicleID: "veh-1", StartTime: at(8), EnergyCharged: 40, PricePerKwh: 1.5, TotalCost: 0},
			wantCost: 60.00,
		},
		{
			name:     "negative cost recomputed",
			record:   models.ChargingRecord{ID: "r1", VehicleID: "veh-1", StartTime: at(8), EnergyCharged: 10, PricePerKwh: 2, TotalCost: -5},
			wantCost: 20.00,
		},
		{
			name:     "valid cost only rounded",
			record:   models.ChargingRecord{ID: "r1", VehicleID: "veh-1", StartTime: at(8), EnergyCharged: 40, PricePerKwh: 1.5, TotalCost: 55.555},
			wantCost: 55.56,
		},
		{
			name:     "zero cost kept when price missing",
			record:   models.ChargingRecord{ID: "r1", VehicleID: "veh-1", StartTime: at(8), EnergyCharged: 40, TotalCost: 0},
			wantCost: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Reconcile([]models.ChargingRecord{tt.record}, []models.Vehicle{testVehicle(60)})
			require.Len(t, out, 1)
			assert.Equal(t, tt.wantCost, out[0].TotalCost)
		})
	}
}

func TestReconcileTheoreticalEnergyAndLoss(t *testing.T) {
	rec := models.ChargingRecord{
		ID: "r1", VehicleID: "veh-1", StartTime: at(8),
		StartSoC: 20, EndSoC: 80, EnergyCharged: 40,
	}

	out := Reconcile([]models.ChargingRecord{rec}, []models.Vehicle{testVehicle(60)})
	require.Len(t, out, 1)
	assert.Equal(t, 36.00, out[0].TheoreticalEnergy)
	assert.Equal(t, 10.00, out[0].EfficiencyLossPct)
}

func TestReconcileInvertedSoCLeavesPreviousValues(t *testing.T) {
	rec := models.ChargingRecord{
		ID: "r1", VehicleID: "veh-1", StartTime: at(8),
		StartSoC: 80, EndSoC: 20,
		TheoreticalEnergy: 12.5, EfficiencyLossPct: 3.3,
	}

	out := Reconcile([]models.ChargingRecord{rec}, []models.Vehicle{testVehicle(60)})
	require.Len(t, out, 1)
	assert.Equal(t, 12.5, out[0].TheoreticalEnergy)
	assert.Equal(t, 3.3, out[0].EfficiencyLossPct)
}

func TestReconcileDuration(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     *time.Time
		prevDur int
		want    int
	}{
		{name: "two hours", start: at(8), end: atPtr(10), want: 120},
		{name: "end before start clamps to zero", start: at(10), end: atPtr(8), want: 0},
		{name: "missing end keeps existing", start: at(8), end: nil, prevDur: 45, want: 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.ChargingRecord{
				ID: "r1", VehicleID: "veh-1",
				StartTime: tt.start, EndTime: tt.end, DurationMinutes: tt.prevDur,
			}
			out := Reconcile([]models.ChargingRecord{rec}, []models.Vehicle{testVehicle(60)})
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].DurationMinutes)
		})
	}
}

func TestReconcileConsumption(t *testing.T) {
	recs := []models.ChargingRecord{
		{ID: "a", VehicleID: "veh-1", StartTime: at(8), EndSoC: 80, Odometer: 1000},
		{ID: "b", VehicleID: "veh-1", StartTime: at(20), StartSoC: 30, EndSoC: 90, Odometer: 1300},
	}

	out := Reconcile(recs, []models.Vehicle{testVehicle(60)})
	require.Len(t, out, 2)

	byID := indexByID(out)
	assert.Equal(t, float64(0), byID["a"].DistanceDriven)
	assert.Equal(t, float64(0), byID["a"].EnergyConsumption)
	// 行驶 300km，消耗 50% SoC = 30kWh → 10kWh/100km
	assert.Equal(t, 300.0, byID["b"].DistanceDriven)
	assert.Equal(t, 10.00, byID["b"].EnergyConsumption)
}

func TestReconcileDistanceNeverNegative(t *testing.T) {
	recs := []models.ChargingRecord{
		{ID: "a", VehicleID: "veh-1", StartTime: at(8), EndSoC: 80, Odometer: 5000},
		{ID: "b", VehicleID: "veh-1", StartTime: at(12), StartSoC: 40, Odometer: 4200},
		{ID: "c", VehicleID: "veh-1", StartTime: at(18), StartSoC: 30, Odometer: 4100},
	}

	out := Reconcile(recs, []models.Vehicle{testVehicle(60)})
	require.Len(t, out, 3)
	for _, r := range out {
		assert.GreaterOrEqual(t, r.DistanceDriven, float64(0), "record %s", r.ID)
	}
	// 里程表回退时不计能耗
	assert.Equal(t, float64(0), indexByID(out)["b"].EnergyConsumption)
}

func TestReconcileFirstRecordZeroed(t *testing.T) {
	recs := []models.ChargingRecord{
		// 首条记录即使里程表远大于 0 也不计距离
		{ID: "a", VehicleID: "veh-1", StartTime: at(8), Odometer: 88000, StartSoC: 10, EndSoC: 70},
	}

	out := Reconcile(recs, []models.Vehicle{testVehicle(60)})
	require.Len(t, out, 1)
	assert.Equal(t, float64(0), out[0].DistanceDriven)
	assert.Equal(t, float64(0), out[0].EnergyConsumption)
}

func TestReconcileOrphanRecordTolerated(t *testing.T) {
	recs := []models.ChargingRecord{
		{ID: "a", VehicleID: "ghost", StartTime: at(8), StartSoC: 20, EndSoC: 80, EnergyCharged: 40, TheoreticalEnergy: 7.7},
	}

	out := Reconcile(recs, []models.Vehicle{testVehicle(60)})
	require.Len(t, out, 1)
	// 容量按 0 处理：理论电量保留原值，不报错
	assert.Equal(t, 7.7, out[0].TheoreticalEnergy)
	assert.Equal(t, float64(0), out[0].EnergyConsumption)
}

func TestReconcileIdempotent(t *testing.T) {
	vehicles := []models.Vehicle{testVehicle(75)}
	recs := []models.ChargingRecord{
		{ID: "a", VehicleID: "veh-1", StartTime: at(8), EndTime: atPtr(9), StartSoC: 20, EndSoC: 80, Odometer: 1000, EnergyCharged: 48, PricePerKwh: 1.2},
		{ID: "b", VehicleID: "veh-1", StartTime: at(20), EndTime: atPtr(22), StartSoC: 35, EndSoC: 90, Odometer: 1260, EnergyCharged: 44, PricePerKwh: 0.8},
		{ID: "c", VehicleID: "veh-2", StartTime: at(10), StartSoC: 50, EndSoC: 60, Odometer: 300, EnergyCharged: 6, TotalCost: 9.111},
	}

	once := Reconcile(recs, vehicles)
	twice := Reconcile(once, vehicles)
	assert.Equal(t, once, twice)
}

func TestReconcileOrderInvariant(t *testing.T) {
	vehicles := []models.Vehicle{testVehicle(75)}
	recs := []models.ChargingRecord{
		{ID: "a", VehicleID: "veh-1", StartTime: at(8), StartSoC: 20, EndSoC: 80, Odometer: 1000, EnergyCharged: 48},
		{ID: "b", VehicleID: "veh-1", StartTime: at(12), StartSoC: 60, EndSoC: 90, Odometer: 1100, EnergyCharged: 24},
		{ID: "c", VehicleID: "veh-1", StartTime: at(20), StartSoC: 35, EndSoC: 70, Odometer: 1260, EnergyCharged: 28},
		{ID: "d", VehicleID: "veh-2", StartTime: at(10), StartSoC: 50, EndSoC: 60, Odometer: 300, EnergyCharged: 6},
	}

	want := indexByID(Reconcile(recs, vehicles))

	shuffled := make([]models.ChargingRecord, len(recs))
	copy(shuffled, recs)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := indexByID(Reconcile(shuffled, vehicles))
		assert.Equal(t, want, got)
	}
}

func TestReconcileCountPreservedAcrossVehicles(t *testing.T) {
	var recs []models.ChargingRecord
	for i := 0; i < 7; i++ {
		id := string(rune('a' + i))
		vehID := "veh-1"
		if i%2 == 0 {
			vehID = "ghost"
		}
		recs = append(recs, models.ChargingRecord{ID: id, VehicleID: vehID, StartTime: at(8 + i)})
	}

	out := Reconcile(recs, []models.Vehicle{testVehicle(60)})
	assert.Len(t, out, len(recs))
	assert.Len(t, indexByID(out), len(recs))
}

func indexByID(recs []models.ChargingRecord) map[string]models.ChargingRecord {
	m := make(map[string]models.ChargingRecord, len(recs))
	for _, r := range recs {
		m[r.ID] = r
	}
	return m
}
