package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/milkywaybrain/exchangeloader/internal/config"
)

// MySQL is for connecting and inserting data to MySQL.
type MySQL struct {
	DB  *sql.DB
	Cfg *config.MySQL
}

var _mysql *MySQL

// insertOptionQuery stores one option of a rebuilt list per row.
const insertOptionQuery = "INSERT INTO exchange_option (widget, position, value, snapshot_time) VALUES (?, ?, ?, ?)"

// mysqlDSN builds the data source name from configured values.
func mysqlDSN(cfg *config.MySQL) string {
	dsn := mysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = cfg.URL
	dsn.DBName = cfg.Schema
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	if cfg.ReqTimeoutSec > 0 {
		dsn.Timeout = time.Duration(cfg.ReqTimeoutSec) * time.Second
		dsn.ReadTimeout = dsn.Timeout
		dsn.WriteTimeout = dsn.Timeout
	}
	return dsn.FormatDSN()
}

// InitMySQL initializes mysql connection with configured values.
func InitMySQL(cfg *config.MySQL) (*MySQL, error) {
	if _mysql == nil {
		db, err := sql.Open("mysql", mysqlDSN(cfg))
		if err != nil {
			return nil, err
		}
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSec) * time.Second)
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)

		ctx, cancel := requestContext(context.Background(), cfg.ReqTimeoutSec)
		defer cancel()
		err = db.PingContext(ctx)
		if err != nil {
			return nil, err
		}
		_mysql = &MySQL{
			DB:  db,
			Cfg: cfg,
		}
		register(config.MYSQL, _mysql)
	}
	return _mysql, nil
}

// CommitSnapshot inserts the rebuilt option list to mysql, one row per option.
func (m *MySQL) CommitSnapshot(appCtx context.Context, s Snapshot) error {
	ctx, cancel := requestContext(appCtx, m.Cfg.ReqTimeoutSec)
	defer cancel()
	return insertOptions(ctx, m.DB, s, s.Timestamp.UTC())
}

// insertOptions writes all options of a snapshot in a single transaction.
func insertOptions(ctx context.Context, db *sql.DB, s Snapshot, ts interface{}) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertOptionQuery)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, exchange := range s.Exchanges {
		_, err = stmt.ExecContext(ctx, s.Widget, i+1, exchange, ts)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// requestContext returns a context with the configured request timeout.
// Zero timeout returns a plain cancelable context.
func requestContext(parent context.Context, timeoutSec int) (context.Context, context.CancelFunc) {
	if timeoutSec > 0 {
		return context.WithTimeout(parent, time.Duration(timeoutSec)*time.Second)
	}
	return context.WithCancel(parent)
}
