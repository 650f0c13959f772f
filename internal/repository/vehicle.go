package repository

import (
	"context"
	"fmt"

	"github.com/voltlog/voltlog/internal/syncer"
)

// VehicleRepository 车辆行存储，冲突键为 license_plate
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// Upsert 批量写入车辆行，同车牌按整行覆盖
func (r *VehicleRepository) Upsert(ctx context.Context, rows []syncer.VehicleRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert vehicles: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO vehicles (license_plate, id, name, battery_capacity, initial_odometer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (license_plate) DO UPDATE SET
			id = EXCLUDED.id,
			name = EXCLUDED.name,
			battery_capacity = EXCLUDED.battery_capacity,
			initial_odometer = EXCLUDED.initial_odometer,
			updated_at = EXCLUDED.updated_at
	`
	for _, row := range rows {
		if _, err := tx.Exec(ctx, query,
			row.LicensePlate,
			row.ID,
			row.Name,
			row.BatteryCapacity,
			row.InitialOdometer,
			row.CreatedAt,
			row.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert vehicle %s: %w", row.LicensePlate, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert vehicles: %w", err)
	}
	return nil
}

// DeleteByIDs 按本地 id 批量删除
func (r *VehicleRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM vehicles WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete vehicles: %w", err)
	}
	return nil
}

// Versions 获取所有车辆的 (车牌, 版本) 对
func (r *VehicleRepository) Versions(ctx context.Context) ([]syncer.VehicleVersion, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT license_plate, updated_at FROM vehicles`)
	if err != nil {
		return nil, fmt.Errorf("list vehicle versions: %w", err)
	}
	defer rows.Close()

	var versions []syncer.VehicleVersion
	for rows.Next() {
		var v syncer.VehicleVersion
		if err := rows.Scan(&v.LicensePlate, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// List 获取所有车辆行
func (r *VehicleRepository) List(ctx context.Context) ([]syncer.VehicleRow, error) {
	query := `
		SELECT license_plate, id, name, battery_capacity, initial_odometer, created_at, updated_at
		FROM vehicles ORDER BY license_plate
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var out []syncer.VehicleRow
	for rows.Next() {
		var v syncer.VehicleRow
		if err := rows.Scan(
			&v.LicensePlate,
			&v.ID,
			&v.Name,
			&v.BatteryCapacity,
			&v.InitialOdometer,
			&v.CreatedAt,
			&v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
