package models

import "time"

// ChargeType 充电类型
type ChargeType string

const (
	ChargeTypeFast ChargeType = "fast" // 快充
	ChargeTypeSlow ChargeType = "slow" // 慢充
)

// Vehicle 车辆信息
//
// ID 为本地生成，仅在当前设备内稳定；LicensePlate 是跨设备的唯一身份，
// 参与同步的车辆必须填写车牌。
type Vehicle struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BatteryCapacity float64 `json:"battery_capacity"` // kWh
	LicensePlate    string  `json:"license_plate"`
	InitialOdometer float64 `json:"initial_odometer"` // km，建档前的初始里程
	CreatedAt       int64   `json:"created_at"`       // epoch millis
	UpdatedAt       int64   `json:"updated_at"`       // epoch millis，同步比较用
}

// ChargingRecord 充电记录
//
// “派生字段”以下的字段由 ledger.Reconcile 重算，上传时作为冗余分析列，
// 拉取时一律丢弃重算。
type ChargingRecord struct {
	ID            string     `json:"id"`
	VehicleID     string     `json:"vehicle_id"`
	Odometer      float64    `json:"odometer"` // km，记录时的仪表盘读数
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	StartSoC      float64    `json:"start_soc"` // 百分比
	EndSoC        float64    `json:"end_soc"`   // 百分比
	PricePerKwh   float64    `json:"price_per_kwh"`
	EnergyCharged float64    `json:"energy_charged"` // kWh，电表计量值
	TotalCost     float64    `json:"total_cost"`
	Type          ChargeType `json:"type"`
	Location      string     `json:"location"`
	Temperature   *float64   `json:"temperature,omitempty"` // °C

	// 派生字段
	DurationMinutes   int     `json:"duration_minutes"`
	TheoreticalEnergy float64 `json:"theoretical_energy"`  // kWh
	EfficiencyLossPct float64 `json:"efficiency_loss_pct"` // 百分比
	DistanceDriven    float64 `json:"distance_driven"`     // km，距上一条记录
	EnergyConsumption float64 `json:"energy_consumption"`  // kWh/100km

	CreatedAt int64 `json:"created_at"` // epoch millis，仅写一次
	UpdatedAt int64 `json:"updated_at"` // epoch millis，每次本地修改刷新
}

// AppState 本地账本的完整快照
//
// 记录扁平存储，按 VehicleID 归属切分。删除队列保存软删除的 id，
// 直到下一次同步成功后清空。
type AppState struct {
	Vehicles          []Vehicle        `json:"vehicles"`
	Records           []ChargingRecord `json:"records"`
	DeletedRecordIDs  []string         `json:"deleted_record_ids"`
	DeletedVehicleIDs []string         `json:"deleted_vehicle_ids"`
	LastSyncedAt      int64            `json:"last_synced_at,omitempty"`
}

// VehicleByID 按 ID 查找车辆
func VehicleByID(vehicles []Vehicle, id string) (Vehicle, bool) {
	for _, v := range vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return Vehicle{}, false
}

// VehicleByPlate 按车牌查找车辆
func VehicleByPlate(vehicles []Vehicle, plate string) (Vehicle, bool) {
	for _, v := range vehicles {
		if v.LicensePlate == plate {
			return v, true
		}
	}
	return Vehicle{}, false
}
