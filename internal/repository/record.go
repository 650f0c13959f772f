package repository

import (
	"context"
	"fmt"

	"github.com/voltlog/voltlog/internal/syncer"
)

// RecordRepository 充电记录行存储，冲突键为 id
type RecordRepository struct {
	db *DB
}

// NewRecordRepository 创建充电记录仓库
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Upsert 批量写入记录行，同 id 按整行覆盖
func (r *RecordRepository) Upsert(ctx context.Context, rows []syncer.RecordRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert records: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO charging_records (
			id, license_plate, odometer, start_time, end_time, start_soc, end_soc,
			price_per_kwh, energy_charged, total_cost, type, location, temperature,
			duration_minutes, theoretical_energy, efficiency_loss_pct, distance_driven,
			energy_consumption, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			license_plate = EXCLUDED.license_plate,
			odometer = EXCLUDED.odometer,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			start_soc = EXCLUDED.start_soc,
			end_soc = EXCLUDED.end_soc,
			price_per_kwh = EXCLUDED.price_per_kwh,
			energy_charged = EXCLUDED.energy_charged,
			total_cost = EXCLUDED.total_cost,
			type = EXCLUDED.type,
			location = EXCLUDED.location,
			temperature = EXCLUDED.temperature,
			duration_minutes = EXCLUDED.duration_minutes,
			theoretical_energy = EXCLUDED.theoretical_energy,
			efficiency_loss_pct = EXCLUDED.efficiency_loss_pct,
			distance_driven = EXCLUDED.distance_driven,
			energy_consumption = EXCLUDED.energy_consumption,
			updated_at = EXCLUDED.updated_at
	`
	for _, row := range rows {
		if _, err := tx.Exec(ctx, query,
			row.ID,
			row.LicensePlate,
			row.Odometer,
			row.StartTime,
			row.EndTime,
			row.StartSoC,
			row.EndSoC,
			row.PricePerKwh,
			row.EnergyCharged,
			row.TotalCost,
			row.Type,
			row.Location,
			row.Temperature,
			row.DurationMinutes,
			row.TheoreticalEnergy,
			row.EfficiencyLossPct,
			row.DistanceDriven,
			row.EnergyConsumption,
			row.CreatedAt,
			row.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert record %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert records: %w", err)
	}
	return nil
}

// DeleteByIDs 按 id 批量删除
func (r *RecordRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM charging_records WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// Versions 获取所有记录的 (id, 版本) 对
func (r *RecordRepository) Versions(ctx context.Context) ([]syncer.RecordVersion, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, updated_at FROM charging_records`)
	if err != nil {
		return nil, fmt.Errorf("list record versions: %w", err)
	}
	defer rows.Close()

	var versions []syncer.RecordVersion
	for rows.Next() {
		var v syncer.RecordVersion
		if err := rows.Scan(&v.ID, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// List 获取所有记录行
func (r *RecordRepository) List(ctx context.Context) ([]syncer.RecordRow, error) {
	query := `
		SELECT id, license_plate, odometer, start_time, end_time, start_soc, end_soc,
			price_per_kwh, energy_charged, total_cost, type, location, temperature,
			duration_minutes, theoretical_energy, efficiency_loss_pct, distance_driven,
			energy_consumption, created_at, updated_at
		FROM charging_records ORDER BY start_time
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []syncer.RecordRow
	for rows.Next() {
		var rec syncer.RecordRow
		if err := rows.Scan(
			&rec.ID,
			&rec.LicensePlate,
			&rec.Odometer,
			&rec.StartTime,
			&rec.EndTime,
			&rec.StartSoC,
			&rec.EndSoC,
			&rec.PricePerKwh,
			&rec.EnergyCharged,
			&rec.TotalCost,
			&rec.Type,
			&rec.Location,
			&rec.Temperature,
			&rec.DurationMinutes,
			&rec.TheoreticalEnergy,
			&rec.EfficiencyLossPct,
			&rec.DistanceDriven,
			&rec.EnergyConsumption,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
