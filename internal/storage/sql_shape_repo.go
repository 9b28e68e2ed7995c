package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/annel0/microblock/internal/vec"
)

// Поддерживаемые SQL-диалекты
const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

type sqlDialect struct {
	createTable string
	upsert      string
}

var dialects = map[string]sqlDialect{
	DialectMySQL: {
		createTable: `
			CREATE TABLE IF NOT EXISTS microblocks (
				x          INT         NOT NULL,
				y          INT         NOT NULL,
				z          INT         NOT NULL,
				data       MEDIUMBLOB  NOT NULL,
				updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
				           ON UPDATE   CURRENT_TIMESTAMP,
				PRIMARY KEY (x, y, z)
			) ENGINE=InnoDB
		`,
		upsert: `
			INSERT INTO microblocks (x, y, z, data)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				updated_at = CURRENT_TIMESTAMP
		`,
	},
	DialectSQLite: {
		createTable: `
			CREATE TABLE IF NOT EXISTS microblocks (
				x          INTEGER NOT NULL,
				y          INTEGER NOT NULL,
				z          INTEGER NOT NULL,
				data       BLOB    NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (x, y, z)
			)
		`,
		upsert: `
			INSERT INTO microblocks (x, y, z, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (x, y, z) DO UPDATE SET
				data = excluded.data,
				updated_at = CURRENT_TIMESTAMP
		`,
	},
}

// SQLShapeRepo реализует ShapeRepo для MariaDB/MySQL и SQLite.
// Использует таблицу microblocks с составным ключом (x, y, z).
type SQLShapeRepo struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLShapeRepo открывает базу и создаёт таблицу, если её нет.
//
// Параметры:
//
//	driver - mysql или sqlite
//	dsn - строка подключения (user:pass@tcp(host:port)/dbname или путь к файлу, :memory:)
func NewSQLShapeRepo(driver, dsn string) (*SQLShapeRepo, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("неизвестный SQL-драйвер %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к %s: %w", driver, err)
	}
	if driver == DialectSQLite {
		// SQLite пишет в один файл; :memory: живёт только в пределах соединения
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с %s: %w", driver, err)
	}

	repo := &SQLShapeRepo{db: db, dialect: dialect}
	if _, err := db.Exec(dialect.createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка создания таблицы microblocks: %w", err)
	}
	return repo, nil
}

// Save сохраняет blob, перезаписывая существующую запись
func (r *SQLShapeRepo) Save(ctx context.Context, pos vec.Vec3, blob []byte) error {
	_, err := r.db.ExecContext(ctx, r.dialect.upsert, pos.X, pos.Y, pos.Z, blob)
	if err != nil {
		return fmt.Errorf("ошибка сохранения микроблока %s: %w", pos, err)
	}
	return nil
}

// Load загружает blob
func (r *SQLShapeRepo) Load(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	query := `SELECT data FROM microblocks WHERE x = ? AND y = ? AND z = ?`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, pos.X, pos.Y, pos.Z).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки микроблока %s: %w", pos, err)
	}
	return data, true, nil
}

// Delete удаляет запись
func (r *SQLShapeRepo) Delete(ctx context.Context, pos vec.Vec3) error {
	query := `DELETE FROM microblocks WHERE x = ? AND y = ? AND z = ?`

	result, err := r.db.ExecContext(ctx, query, pos.X, pos.Y, pos.Z)
	if err != nil {
		return fmt.Errorf("ошибка удаления микроблока %s: %w", pos, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if rowsAffected == 0 {
		return notFound(pos)
	}
	return nil
}

// BatchSave сохраняет записи в одной транзакции
func (r *SQLShapeRepo) BatchSave(ctx context.Context, blobs map[vec.Vec3][]byte) error {
	if len(blobs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	stmt, err := tx.PrepareContext(ctx, r.dialect.upsert)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for pos, blob := range blobs {
		if _, err := stmt.ExecContext(ctx, pos.X, pos.Y, pos.Z, blob); err != nil {
			return fmt.Errorf("ошибка сохранения микроблока %s в batch: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Positions возвращает позиции всех записей
func (r *SQLShapeRepo) Positions(ctx context.Context) ([]vec.Vec3, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT x, y, z FROM microblocks ORDER BY x, y, z`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения позиций: %w", err)
	}
	defer rows.Close()

	var out []vec.Vec3
	for rows.Next() {
		var pos vec.Vec3
		if err := rows.Scan(&pos.X, &pos.Y, &pos.Z); err != nil {
			return nil, fmt.Errorf("ошибка разбора строки: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// Close закрывает соединение с базой данных
func (r *SQLShapeRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
