package syncer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigMissing 同步配置缺失（api key 或 project url 为空）
	ErrConfigMissing = errors.New("sync is not configured: project url and api key are required")

	// ErrSyncInFlight 已有同步在进行中
	ErrSyncInFlight = errors.New("a sync is already in progress")
)

// MissingPlateError 存在未填写车牌的车辆，车牌是同步的唯一身份键
type MissingPlateError struct {
	Names []string
}

func (e *MissingPlateError) Error() string {
	return fmt.Sprintf("vehicles missing a license plate: %s", strings.Join(e.Names, ", "))
}

// StepError 某个同步步骤的远端操作失败，整个同步中止
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sync step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
