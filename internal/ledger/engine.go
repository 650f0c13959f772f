package ledger

import (
	"math"
	"sort"

	"github.com/voltlog/voltlog/internal/models"
)

// Reconcile 重算所有派生字段
//
// 纯函数：输入记录可以乱序、派生字段可以缺失或过期，输出包含全部输入记录
// （数量不变），非派生字段原样保留。记录按 VehicleID 分组、组内按开始时间
// 稳定排序后逐条计算。找不到对应车辆的孤儿记录按容量 0 处理（禁用理论
// 电量与能耗计算），而不是报错。本函数永不失败：畸形输入（容量为负、
// SoC 倒置）退化为零值派生字段。
func Reconcile(records []models.ChargingRecord, vehicles []models.Vehicle) []models.ChargingRecord {
	capacityByID := make(map[string]float64, len(vehicles))
	for _, v := range vehicles {
		capacityByID[v.ID] = v.BatteryCapacity
	}

	// 按归属分组，保持首次出现的顺序
	groups := make(map[string][]models.ChargingRecord)
	var order []string
	for _, r := range records {
		if _, ok := groups[r.VehicleID]; !ok {
			order = append(order, r.VehicleID)
		}
		groups[r.VehicleID] = append(groups[r.VehicleID], r)
	}

	out := make([]models.ChargingRecord, 0, len(records))
	for _, vehicleID := range order {
		group := groups[vehicleID]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].StartTime.Before(group[j].StartTime)
		})

		capacity := capacityByID[vehicleID]
		for i := range group {
			var prev *models.ChargingRecord
			if i > 0 {
				prev = &group[i-1]
			}
			group[i] = recompute(group[i], prev, capacity)
		}
		out = append(out, group...)
	}

	return out
}

// recompute 计算单条记录的派生字段，prev 为时间线上的前一条（首条为 nil）
func recompute(r models.ChargingRecord, prev *models.ChargingRecord, capacity float64) models.ChargingRecord {
	// 费用修复：总价非法但单价和电量可用时重算
	if !(isFinite(r.TotalCost) && r.TotalCost > 0) && r.EnergyCharged > 0 && r.PricePerKwh > 0 {
		r.TotalCost = round2(r.EnergyCharged * r.PricePerKwh)
	} else {
		if !isFinite(r.TotalCost) {
			r.TotalCost = 0
		}
		r.TotalCost = round2(r.TotalCost)
	}

	// 时长（分钟，非负）
	if r.EndTime != nil {
		minutes := r.EndTime.Sub(r.StartTime).Minutes()
		r.DurationMinutes = int(math.Max(0, math.Round(minutes)))
	}

	// 理论电量与损耗；容量缺失或 SoC 倒置时保留原值
	if capacity > 0 && r.EndSoC >= r.StartSoC {
		r.TheoreticalEnergy = round2(capacity * (r.EndSoC - r.StartSoC) / 100)
		if r.EnergyCharged > 0 {
			r.EfficiencyLossPct = round2((r.EnergyCharged - r.TheoreticalEnergy) / r.EnergyCharged * 100)
		} else {
			r.EfficiencyLossPct = 0
		}
	}

	// 行驶距离与能耗，仅对非首条记录计算
	if prev == nil {
		r.DistanceDriven = 0
		r.EnergyConsumption = 0
		return r
	}

	r.DistanceDriven = math.Max(0, r.Odometer-prev.Odometer)
	socUsed := prev.EndSoC - r.StartSoC
	if r.DistanceDriven > 0 && socUsed > 0 && capacity > 0 {
		energyUsed := capacity * socUsed / 100
		r.EnergyConsumption = round2(energyUsed / r.DistanceDriven * 100)
	} else {
		r.EnergyConsumption = 0
	}

	return r
}

// round2 保留两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
