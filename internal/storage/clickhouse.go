package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the clickhouse driver for database/sql.
	_ "github.com/ClickHouse/clickhouse-go"
	"github.com/milkywaybrain/exchangeloader/internal/config"
)

// ClickHouse is for connecting and inserting data to ClickHouse.
type ClickHouse struct {
	DB  *sql.DB
	Cfg *config.ClickHouse
}

var _clickHouse *ClickHouse

// ClickHouse timestamp format.
const clickHouseTimestamp = "2006-01-02 15:04:05.999"

// clickHouseDSN builds the data source name from configured values.
func clickHouseDSN(cfg *config.ClickHouse) string {
	var dataSourceName strings.Builder
	dataSourceName.WriteString(cfg.URL + "?")
	dataSourceName.WriteString("database=" + cfg.Schema)
	dataSourceName.WriteString("&read_timeout=" + fmt.Sprintf("%d", cfg.ReqTimeoutSec) + "&write_timeout=" + fmt.Sprintf("%d", cfg.ReqTimeoutSec))
	if strings.TrimSpace(cfg.User) != "" && strings.TrimSpace(cfg.Password) != "" {
		dataSourceName.WriteString("&username=" + cfg.User + "&password=" + cfg.Password)
	}
	if cfg.Compression {
		dataSourceName.WriteString("&compress=1")
	}
	var hosts []string
	for _, v := range cfg.AltHosts {
		if strings.TrimSpace(v) != "" {
			hosts = append(hosts, v)
		}
	}
	if len(hosts) > 0 {
		dataSourceName.WriteString("&alt_hosts=" + strings.Join(hosts, ","))
	}
	return dataSourceName.String()
}

// InitClickHouse initializes ClickHouse connection with configured values.
func InitClickHouse(cfg *config.ClickHouse) (*ClickHouse, error) {
	if _clickHouse == nil {
		db, err := sql.Open("clickhouse", clickHouseDSN(cfg))
		if err != nil {
			return nil, err
		}

		err = db.Ping()
		if err != nil {
			return nil, err
		}
		_clickHouse = &ClickHouse{
			DB:  db,
			Cfg: cfg,
		}
		register(config.CLICKHOUSE, _clickHouse)
	}
	return _clickHouse, nil
}

// CommitSnapshot inserts the rebuilt option list to clickhouse, one row per option.
// ClickHouse batches the rows of one transaction into a single block.
func (c *ClickHouse) CommitSnapshot(appCtx context.Context, s Snapshot) error {
	ctx, cancel := requestContext(appCtx, c.Cfg.ReqTimeoutSec)
	defer cancel()
	return insertOptions(ctx, c.DB, s, s.Timestamp.UTC().Format(clickHouseTimestamp))
}
