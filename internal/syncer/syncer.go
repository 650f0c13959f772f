package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/voltlog/voltlog/internal/ledger"
	"github.com/voltlog/voltlog/internal/models"
)

// 同步阶段常量
const (
	PhaseIdle            = "idle"
	PhaseDeleting        = "deleting"
	PhasePushingVehicles = "pushing_vehicles"
	PhasePushingRecords  = "pushing_records"
	PhasePulling         = "pulling"
	PhaseMerging         = "merging"
)

// 阶段转换事件
const (
	eventBegin        = "begin"
	eventPushVehicles = "push_vehicles"
	eventPushRecords  = "push_records"
	eventPull         = "pull"
	eventMerge        = "merge"
	eventFinish       = "finish"
	eventAbort        = "abort"
)

// Config 同步所需的远端配置
type Config struct {
	ProjectURL string
	APIKey     string
}

// RemoteStore 行式远端存储
//
// vehicles 表以 license_plate 为冲突键，charging_records 表以 id 为
// 冲突键。所有实现都应在调用方取消 ctx 时尽快返回。
type RemoteStore interface {
	DeleteRecords(ctx context.Context, ids []string) error
	DeleteVehicles(ctx context.Context, ids []string) error
	VehicleVersions(ctx context.Context) ([]VehicleVersion, error)
	RecordVersions(ctx context.Context) ([]RecordVersion, error)
	UpsertVehicles(ctx context.Context, rows []VehicleRow) error
	UpsertRecords(ctx context.Context, rows []RecordRow) error
	FetchVehicles(ctx context.Context) ([]VehicleRow, error)
	FetchRecords(ctx context.Context) ([]RecordRow, error)
}

// Outcome 同步成功后用于替换本地状态的片段
//
// 两个删除队列在成功时恒为空，提示调用方丢弃已排队的 id。
type Outcome struct {
	Vehicles          []models.Vehicle
	Records           []models.ChargingRecord
	DeletedRecordIDs  []string
	DeletedVehicleIDs []string
	SyncedAt          int64
}

// Coordinator 双向同步协调器
//
// 推送（删除传播 + 选择性上传）严格先于拉取执行，后续步骤依赖前面步骤
// 的远端可见效果，因此各步骤串行、任一失败即整体中止。状态机同时充当
// 单飞守卫：只有 idle 状态才能开始新的同步。
type Coordinator struct {
	remote RemoteStore
	logger *zap.Logger

	mu    sync.Mutex
	fsm   *fsm.FSM
	newID func() string
	now   func() int64
}

// NewCoordinator 创建同步协调器
func NewCoordinator(remote RemoteStore, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		remote: remote,
		logger: logger,
		newID:  uuid.NewString,
		now:    func() int64 { return time.Now().UnixMilli() },
	}

	c.fsm = fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventBegin, Src: []string{PhaseIdle}, Dst: PhaseDeleting},
			{Name: eventPushVehicles, Src: []string{PhaseDeleting}, Dst: PhasePushingVehicles},
			{Name: eventPushRecords, Src: []string{PhasePushingVehicles}, Dst: PhasePushingRecords},
			{Name: eventPull, Src: []string{PhasePushingRecords}, Dst: PhasePulling},
			{Name: eventMerge, Src: []string{PhasePulling}, Dst: PhaseMerging},
			{Name: eventFinish, Src: []string{PhaseMerging}, Dst: PhaseIdle},
			{Name: eventAbort, Src: []string{
				PhaseDeleting, PhasePushingVehicles, PhasePushingRecords, PhasePulling, PhaseMerging,
			}, Dst: PhaseIdle},
		},
		fsm.Callbacks{},
	)

	return c
}

// Phase 当前同步阶段
func (c *Coordinator) Phase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.Current()
}

func (c *Coordinator) transition(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.Event(context.Background(), event)
}

// Sync 执行一次完整同步：删除传播 → 选择性推送 → 全量拉取 → 合并重算
//
// 失败时不产生任何部分结果，调用方保留原状态（含删除队列）即可在下次
// 重试；成功时返回替换片段，删除队列已清空。
func (c *Coordinator) Sync(ctx context.Context, cfg Config, state models.AppState) (*Outcome, error) {
	// 前置校验，不发起任何远端调用
	if cfg.ProjectURL == "" || cfg.APIKey == "" {
		return nil, ErrConfigMissing
	}
	if missing := platelessNames(state.Vehicles); len(missing) > 0 {
		return nil, &MissingPlateError{Names: missing}
	}

	if err := c.transition(eventBegin); err != nil {
		return nil, ErrSyncInFlight
	}

	outcome, err := c.run(ctx, state)
	if err != nil {
		if abortErr := c.transition(eventAbort); abortErr != nil {
			c.logger.Error("failed to reset sync phase", zap.Error(abortErr))
		}
		c.logger.Warn("sync aborted", zap.Error(err))
		return nil, err
	}

	if err := c.transition(eventFinish); err != nil {
		c.logger.Error("failed to reset sync phase", zap.Error(err))
	}
	return outcome, nil
}

func (c *Coordinator) run(ctx context.Context, state models.AppState) (*Outcome, error) {
	// 步骤 1：删除传播
	if len(state.DeletedRecordIDs) > 0 {
		if err := c.remote.DeleteRecords(ctx, state.DeletedRecordIDs); err != nil {
			return nil, &StepError{Step: "delete records", Err: err}
		}
	}
	if len(state.DeletedVehicleIDs) > 0 {
		if err := c.remote.DeleteVehicles(ctx, state.DeletedVehicleIDs); err != nil {
			return nil, &StepError{Step: "delete vehicles", Err: err}
		}
	}
	c.logger.Debug("propagated deletions",
		zap.Int("records", len(state.DeletedRecordIDs)),
		zap.Int("vehicles", len(state.DeletedVehicleIDs)))

	// 步骤 2：选择性推送车辆（按车牌比较版本）
	if err := c.transition(eventPushVehicles); err != nil {
		return nil, err
	}
	vehicleVersions, err := c.remote.VehicleVersions(ctx)
	if err != nil {
		return nil, &StepError{Step: "fetch vehicle versions", Err: err}
	}
	remoteVehicleVer := make(map[string]int64, len(vehicleVersions))
	for _, v := range vehicleVersions {
		remoteVehicleVer[v.LicensePlate] = v.UpdatedAt
	}

	var vehicleRows []VehicleRow
	for _, v := range state.Vehicles {
		ver, exists := remoteVehicleVer[v.LicensePlate]
		if !exists || v.UpdatedAt > ver {
			vehicleRows = append(vehicleRows, vehicleRow(v))
		}
	}
	if len(vehicleRows) > 0 {
		if err := c.remote.UpsertVehicles(ctx, vehicleRows); err != nil {
			return nil, &StepError{Step: "push vehicles", Err: err}
		}
	}
	c.logger.Debug("pushed vehicles", zap.Int("count", len(vehicleRows)))

	// 步骤 3：选择性推送记录（按记录 id 比较版本）
	if err := c.transition(eventPushRecords); err != nil {
		return nil, err
	}
	recordVersions, err := c.remote.RecordVersions(ctx)
	if err != nil {
		return nil, &StepError{Step: "fetch record versions", Err: err}
	}
	remoteRecordVer := make(map[string]int64, len(recordVersions))
	for _, r := range recordVersions {
		remoteRecordVer[r.ID] = r.UpdatedAt
	}

	plateByVehicleID := make(map[string]string, len(state.Vehicles))
	for _, v := range state.Vehicles {
		plateByVehicleID[v.ID] = v.LicensePlate
	}

	var recordRows []RecordRow
	for _, r := range state.Records {
		plate := plateByVehicleID[r.VehicleID]
		if plate == "" {
			// 前置校验应已排除；归属车辆无车牌的记录无法上传
			continue
		}
		ver, exists := remoteRecordVer[r.ID]
		if !exists || r.UpdatedAt > ver {
			recordRows = append(recordRows, recordRow(r, plate))
		}
	}
	if len(recordRows) > 0 {
		if err := c.remote.UpsertRecords(ctx, recordRows); err != nil {
			return nil, &StepError{Step: "push records", Err: err}
		}
	}
	c.logger.Debug("pushed records", zap.Int("count", len(recordRows)))

	// 步骤 4：全量拉取（推送先行，读到的是本次写入之后的远端）
	if err := c.transition(eventPull); err != nil {
		return nil, err
	}
	remoteVehicles, err := c.remote.FetchVehicles(ctx)
	if err != nil {
		return nil, &StepError{Step: "pull vehicles", Err: err}
	}
	remoteRecords, err := c.remote.FetchRecords(ctx)
	if err != nil {
		return nil, &StepError{Step: "pull records", Err: err}
	}

	// 步骤 5-7：身份重映射 + 合并重算
	if err := c.transition(eventMerge); err != nil {
		return nil, err
	}
	outcome := c.merge(state, remoteVehicles, remoteRecords)

	c.logger.Info("sync complete",
		zap.Int("vehicles", len(outcome.Vehicles)),
		zap.Int("records", len(outcome.Records)))
	return outcome, nil
}

// merge 以远端为准重建车辆列表，把远端行的车牌映射回本地车辆 ID，
// 找不到归属车辆的记录静默丢弃，最后整体重算派生字段。
func (c *Coordinator) merge(state models.AppState, remoteVehicles []VehicleRow, remoteRecords []RecordRow) *Outcome {
	localIDByPlate := make(map[string]string, len(state.Vehicles))
	for _, v := range state.Vehicles {
		localIDByPlate[v.LicensePlate] = v.ID
	}

	mergedIDByPlate := make(map[string]string, len(remoteVehicles))
	vehicles := make([]models.Vehicle, 0, len(remoteVehicles))
	for _, row := range remoteVehicles {
		localID, ok := localIDByPlate[row.LicensePlate]
		if !ok {
			localID = c.newID()
		}
		mergedIDByPlate[row.LicensePlate] = localID
		vehicles = append(vehicles, rowVehicle(row, localID))
	}

	records := make([]models.ChargingRecord, 0, len(remoteRecords))
	dropped := 0
	for _, row := range remoteRecords {
		vehicleID, ok := mergedIDByPlate[row.LicensePlate]
		if !ok {
			dropped++
			continue
		}
		records = append(records, rowRecord(row, vehicleID))
	}
	if dropped > 0 {
		c.logger.Warn("dropped records without a merged vehicle", zap.Int("count", dropped))
	}

	return &Outcome{
		Vehicles:          vehicles,
		Records:           ledger.Reconcile(records, vehicles),
		DeletedRecordIDs:  []string{},
		DeletedVehicleIDs: []string{},
		SyncedAt:          c.now(),
	}
}

func platelessNames(vehicles []models.Vehicle) []string {
	var names []string
	for _, v := range vehicles {
		if v.LicensePlate == "" {
			names = append(names, v.Name)
		}
	}
	return names
}
