package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltlog/voltlog/internal/ledger"
	"github.com/voltlog/voltlog/internal/models"
	"github.com/voltlog/voltlog/internal/store"
	"github.com/voltlog/voltlog/internal/syncer"
)

// SyncRunner 执行一次完整同步
type SyncRunner interface {
	Sync(ctx context.Context, cfg syncer.Config, state models.AppState) (*syncer.Outcome, error)
}

// LedgerService 账本服务，内存状态的唯一持有者
//
// 状态整体替换式写入：每次修改都在锁内以新值换旧值、重算派生字段并落盘。
// 删除为软删除，id 进入删除队列等待下一次同步成功后清空。
type LedgerService struct {
	logger  *zap.Logger
	store   store.Store
	runner  SyncRunner
	syncCfg syncer.Config

	mu      sync.RWMutex
	state   models.AppState
	syncing atomic.Bool

	newID func() string
	now   func() int64
}

// NewLedgerService 创建账本服务并从本地存储恢复状态
func NewLedgerService(logger *zap.Logger, st store.Store, runner SyncRunner, syncCfg syncer.Config) (*LedgerService, error) {
	state, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}

	// 启动即重算一次，修复旧版本留下的过期派生字段
	state.Records = ledger.Reconcile(state.Records, state.Vehicles)

	return &LedgerService{
		logger:  logger,
		store:   st,
		runner:  runner,
		syncCfg: syncCfg,
		state:   state,
		newID:   uuid.NewString,
		now:     func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// State 当前状态快照
func (s *LedgerService) State() models.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// AddVehicle 新建车辆
func (s *LedgerService) AddVehicle(v models.Vehicle) (models.Vehicle, error) {
	if v.Name == "" {
		return models.Vehicle{}, fmt.Errorf("%w: vehicle name is required", ErrInvalidInput)
	}
	if v.BatteryCapacity <= 0 {
		return models.Vehicle{}, fmt.Errorf("%w: battery capacity must be positive", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v.LicensePlate != "" {
		if _, exists := models.VehicleByPlate(s.state.Vehicles, v.LicensePlate); exists {
			return models.Vehicle{}, fmt.Errorf("%w: license plate %s already in use", ErrInvalidInput, v.LicensePlate)
		}
	}

	now := s.now()
	v.ID = s.newID()
	v.CreatedAt = now
	v.UpdatedAt = now

	next := copyState(s.state)
	next.Vehicles = append(next.Vehicles, v)
	if err := s.replace(next); err != nil {
		return models.Vehicle{}, err
	}
	s.logger.Info("vehicle added", zap.String("vehicle_id", v.ID), zap.String("plate", v.LicensePlate))
	return v, nil
}

// UpdateVehicle 编辑车辆，刷新版本时间戳
func (s *LedgerService) UpdateVehicle(v models.Vehicle) (models.Vehicle, error) {
	if v.BatteryCapacity <= 0 {
		return models.Vehicle{}, fmt.Errorf("%w: battery capacity must be positive", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	found := false
	for i := range next.Vehicles {
		if next.Vehicles[i].ID == v.ID {
			v.CreatedAt = next.Vehicles[i].CreatedAt
			v.UpdatedAt = s.now()
			next.Vehicles[i] = v
			found = true
			break
		}
	}
	if !found {
		return models.Vehicle{}, fmt.Errorf("vehicle %s: %w", v.ID, ErrNotFound)
	}

	if err := s.replace(next); err != nil {
		return models.Vehicle{}, err
	}
	return v, nil
}

// RemoveVehicle 把车辆移出活跃列表并排队远端删除
//
// 历史充电记录保留在本地，哪怕车辆已移除也仍可归属。
func (s *LedgerService) RemoveVehicle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	kept := next.Vehicles[:0]
	found := false
	for _, v := range next.Vehicles {
		if v.ID == id {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	next.Vehicles = kept
	next.DeletedVehicleIDs = append(next.DeletedVehicleIDs, id)

	if err := s.replace(next); err != nil {
		return err
	}
	s.logger.Info("vehicle removed", zap.String("vehicle_id", id))
	return nil
}

// AddRecord 新建充电记录
func (s *LedgerService) AddRecord(r models.ChargingRecord) (models.ChargingRecord, error) {
	records, err := s.AddRecords([]models.ChargingRecord{r})
	if err != nil {
		return models.ChargingRecord{}, err
	}
	return records[0], nil
}

// AddRecords 批量新建充电记录（表单提交或 CSV 导入）
func (s *LedgerService) AddRecords(recs []models.ChargingRecord) ([]models.ChargingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next := copyState(s.state)
	added := make([]models.ChargingRecord, 0, len(recs))
	for _, r := range recs {
		if _, ok := models.VehicleByID(next.Vehicles, r.VehicleID); !ok {
			return nil, fmt.Errorf("%w: record references unknown vehicle %s", ErrInvalidInput, r.VehicleID)
		}
		r.ID = s.newID()
		r.CreatedAt = now
		r.UpdatedAt = now
		next.Records = append(next.Records, r)
		added = append(added, r)
	}

	if err := s.replace(next); err != nil {
		return nil, err
	}

	// replace 已重算，返回重算后的派生字段
	out := make([]models.ChargingRecord, 0, len(added))
	for _, a := range added {
		for _, r := range s.state.Records {
			if r.ID == a.ID {
				out = append(out, r)
				break
			}
		}
	}
	s.logger.Info("records added", zap.Int("count", len(out)))
	return out, nil
}

// UpdateRecord 就地编辑记录，刷新版本时间戳
func (s *LedgerService) UpdateRecord(r models.ChargingRecord) (models.ChargingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	found := false
	for i := range next.Records {
		if next.Records[i].ID == r.ID {
			r.CreatedAt = next.Records[i].CreatedAt
			r.UpdatedAt = s.now()
			next.Records[i] = r
			found = true
			break
		}
	}
	if !found {
		return models.ChargingRecord{}, fmt.Errorf("record %s: %w", r.ID, ErrNotFound)
	}

	if err := s.replace(next); err != nil {
		return models.ChargingRecord{}, err
	}
	for _, rec := range s.state.Records {
		if rec.ID == r.ID {
			return rec, nil
		}
	}
	return r, nil
}

// DeleteRecord 删除记录并把 id 排进删除队列
func (s *LedgerService) DeleteRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	kept := next.Records[:0]
	found := false
	for _, r := range next.Records {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	next.Records = kept
	next.DeletedRecordIDs = append(next.DeletedRecordIDs, id)

	return s.replace(next)
}

// Sync 执行一次同步并应用合并结果
//
// 同一实例同时只允许一次同步；失败时本地状态（含删除队列）原样保留，
// 下次重试即可。
func (s *LedgerService) Sync(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return ErrSyncBusy
	}
	defer s.syncing.Store(false)

	snapshot := s.State()
	outcome, err := s.runner.Sync(ctx, s.syncCfg, snapshot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	next.Vehicles = outcome.Vehicles
	next.Records = outcome.Records
	next.DeletedRecordIDs = outcome.DeletedRecordIDs
	next.DeletedVehicleIDs = outcome.DeletedVehicleIDs
	next.LastSyncedAt = outcome.SyncedAt

	// 合并结果已由协调器重算过，这里只替换不再重算
	s.state = next
	if err := s.store.Save(s.state); err != nil {
		return fmt.Errorf("persist merged state: %w", err)
	}
	s.logger.Info("sync applied",
		zap.Int("vehicles", len(next.Vehicles)),
		zap.Int("records", len(next.Records)))
	return nil
}

// VehicleStats 单车统计汇总
type VehicleStats struct {
	VehicleID      string  `json:"vehicle_id"`
	RecordCount    int     `json:"record_count"`
	TotalDistance  float64 `json:"total_distance"`  // km，含建档前初始里程
	TotalEnergy    float64 `json:"total_energy"`    // kWh
	TotalCost      float64 `json:"total_cost"`
	AvgConsumption float64 `json:"avg_consumption"` // kWh/100km，按距离加权
}

// Stats 计算单车统计；展示层在这里把初始里程加进总距离
func (s *LedgerService) Stats(vehicleID string) (VehicleStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := models.VehicleByID(s.state.Vehicles, vehicleID)
	if !ok {
		return VehicleStats{}, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}

	stats := VehicleStats{VehicleID: vehicleID, TotalDistance: v.InitialOdometer}
	var weighted, distance float64
	for _, r := range s.state.Records {
		if r.VehicleID != vehicleID {
			continue
		}
		stats.RecordCount++
		stats.TotalDistance += r.DistanceDriven
		stats.TotalEnergy += r.EnergyCharged
		stats.TotalCost += r.TotalCost
		if r.EnergyConsumption > 0 && r.DistanceDriven > 0 {
			weighted += r.EnergyConsumption * r.DistanceDriven
			distance += r.DistanceDriven
		}
	}
	if distance > 0 {
		stats.AvgConsumption = weighted / distance
	}
	return stats, nil
}

// replace 重算派生字段、整体替换状态并落盘，调用方须持有写锁
func (s *LedgerService) replace(next models.AppState) error {
	next.Records = ledger.Reconcile(next.Records, next.Vehicles)
	if err := s.store.Save(next); err != nil {
		return fmt.Errorf("persist ledger state: %w", err)
	}
	s.state = next
	return nil
}

func copyState(state models.AppState) models.AppState {
	out := state
	out.Vehicles = append([]models.Vehicle(nil), state.Vehicles...)
	out.Records = append([]models.ChargingRecord(nil), state.Records...)
	out.DeletedRecordIDs = append([]string(nil), state.DeletedRecordIDs...)
	out.DeletedVehicleIDs = append([]string(nil), state.DeletedVehicleIDs...)
	return out
}
