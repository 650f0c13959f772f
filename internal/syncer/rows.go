package syncer

import (
	"time"

	"github.com/voltlog/voltlog/internal/models"
)

// VehicleRow vehicles 表的一行，冲突键为 license_plate
type VehicleRow struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BatteryCapacity float64 `json:"battery_capacity"`
	LicensePlate    string  `json:"license_plate"`
	InitialOdometer float64 `json:"initial_odometer"`
	CreatedAt       int64   `json:"created_at"`
	UpdatedAt       int64   `json:"updated_at"`
}

// RecordRow charging_records 表的一行，冲突键为 id，
// license_plate 指向所属车辆。派生字段仅作为冗余分析列上传，
// 拉取时丢弃重算。
type RecordRow struct {
	ID            string     `json:"id"`
	LicensePlate  string     `json:"license_plate"`
	Odometer      float64    `json:"odometer"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	StartSoC      float64    `json:"start_soc"`
	EndSoC        float64    `json:"end_soc"`
	PricePerKwh   float64    `json:"price_per_kwh"`
	EnergyCharged float64    `json:"energy_charged"`
	TotalCost     float64    `json:"total_cost"`
	Type          string     `json:"type"`
	Location      string     `json:"location"`
	Temperature   *float64   `json:"temperature,omitempty"`

	DurationMinutes   int     `json:"duration_minutes"`
	TheoreticalEnergy float64 `json:"theoretical_energy"`
	EfficiencyLossPct float64 `json:"efficiency_loss_pct"`
	DistanceDriven    float64 `json:"distance_driven"`
	EnergyConsumption float64 `json:"energy_consumption"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// VehicleVersion 选择性推送用的 (车牌, 版本) 对
type VehicleVersion struct {
	LicensePlate string `json:"license_plate"`
	UpdatedAt    int64  `json:"updated_at"`
}

// RecordVersion 选择性推送用的 (记录 id, 版本) 对
type RecordVersion struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
}

// vehicleRow 本地车辆转上传行
func vehicleRow(v models.Vehicle) VehicleRow {
	return VehicleRow{
		ID:              v.ID,
		Name:            v.Name,
		BatteryCapacity: v.BatteryCapacity,
		LicensePlate:    v.LicensePlate,
		InitialOdometer: v.InitialOdometer,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

// rowVehicle 远端行转本地车辆，localID 为身份重映射后的本地 ID
func rowVehicle(row VehicleRow, localID string) models.Vehicle {
	return models.Vehicle{
		ID:              localID,
		Name:            row.Name,
		BatteryCapacity: row.BatteryCapacity,
		LicensePlate:    row.LicensePlate,
		InitialOdometer: row.InitialOdometer,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

// recordRow 本地记录转上传行，plate 为所属车辆车牌
func recordRow(r models.ChargingRecord, plate string) RecordRow {
	return RecordRow{
		ID:                r.ID,
		LicensePlate:      plate,
		Odometer:          r.Odometer,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		StartSoC:          r.StartSoC,
		EndSoC:            r.EndSoC,
		PricePerKwh:       r.PricePerKwh,
		EnergyCharged:     r.EnergyCharged,
		TotalCost:         r.TotalCost,
		Type:              string(r.Type),
		Location:          r.Location,
		Temperature:       r.Temperature,
		DurationMinutes:   r.DurationMinutes,
		TheoreticalEnergy: r.TheoreticalEnergy,
		EfficiencyLossPct: r.EfficiencyLossPct,
		DistanceDriven:    r.DistanceDriven,
		EnergyConsumption: r.EnergyConsumption,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// rowRecord 远端行转本地记录，仅取原始字段，派生字段留给重算
func rowRecord(row RecordRow, vehicleID string) models.ChargingRecord {
	return models.ChargingRecord{
		ID:            row.ID,
		VehicleID:     vehicleID,
		Odometer:      row.Odometer,
		StartTime:     row.StartTime,
		EndTime:       row.EndTime,
		StartSoC:      row.StartSoC,
		EndSoC:        row.EndSoC,
		PricePerKwh:   row.PricePerKwh,
		EnergyCharged: row.EnergyCharged,
		TotalCost:     row.TotalCost,
		Type:          models.ChargeType(row.Type),
		Location:      row.Location,
		Temperature:   row.Temperature,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
