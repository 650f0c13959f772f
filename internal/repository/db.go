package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateVehicles,
		migrationCreateChargingRecords,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
//
// 时间戳列统一为 epoch millis（BIGINT），同步端做 last-write-wins 比较。
const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    license_plate VARCHAR(20) PRIMARY KEY,
    id TEXT NOT NULL,
    name VARCHAR(255) NOT NULL DEFAULT '',
    battery_capacity DOUBLE PRECISION NOT NULL,
    initial_odometer DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vehicles_id ON vehicles(id);
`

const migrationCreateChargingRecords = `
CREATE TABLE IF NOT EXISTS charging_records (
    id TEXT PRIMARY KEY,
    license_plate VARCHAR(20) NOT NULL,
    odometer DOUBLE PRECISION NOT NULL DEFAULT 0,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE,
    start_soc DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_soc DOUBLE PRECISION NOT NULL DEFAULT 0,
    price_per_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
    energy_charged DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
    type VARCHAR(10) NOT NULL DEFAULT 'fast',
    location VARCHAR(255) NOT NULL DEFAULT '',
    temperature DOUBLE PRECISION,
    duration_minutes INT NOT NULL DEFAULT 0,
    theoretical_energy DOUBLE PRECISION NOT NULL DEFAULT 0,
    efficiency_loss_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    distance_driven DOUBLE PRECISION NOT NULL DEFAULT 0,
    energy_consumption DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_charging_records_plate ON charging_records(license_plate);
CREATE INDEX IF NOT EXISTS idx_charging_records_start_time ON charging_records(start_time);
`
