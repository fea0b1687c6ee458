package storage

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/milkywaybrain/exchangeloader/internal/config"
)

// InfluxDB is for connecting and inserting data to influxDB.
type InfluxDB struct {
	WriteAPI api.WriteAPIBlocking
	Cfg      *config.InfluxDB
}

var _influxDB *InfluxDB

var (
	tagEscaper   = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
	fieldEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// InitInfluxDB initializes influxdb connection with configured values.
func InitInfluxDB(cfg *config.InfluxDB) (*InfluxDB, error) {
	if _influxDB == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = cfg.MaxIdleConns
		httpClient := &http.Client{
			Timeout:   time.Duration(cfg.ReqTimeoutSec) * time.Second,
			Transport: t,
		}
		client := influxdb2.NewClientWithOptions(
			cfg.URL,
			cfg.Token,
			influxdb2.DefaultOptions().SetHTTPClient(httpClient).SetUseGZip(true),
		)

		ctx, cancel := requestContext(context.Background(), cfg.ReqTimeoutSec)
		defer cancel()
		_, err := client.Ready(ctx)
		if err != nil {
			return nil, err
		}
		_influxDB = &InfluxDB{
			WriteAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
			Cfg:      cfg,
		}
		register(config.INFLUXDB, _influxDB)
	}
	return _influxDB, nil
}

// influxLine converts a snapshot to a line protocol point.
func influxLine(s Snapshot) string {
	var sb strings.Builder
	sb.WriteString("exchange_options,widget=")
	sb.WriteString(tagEscaper.Replace(s.Widget))
	sb.WriteString(" count=")
	sb.WriteString(strconv.Itoa(len(s.Exchanges)))
	sb.WriteString("i,exchanges=\"")
	sb.WriteString(fieldEscaper.Replace(strings.Join(s.Exchanges, ",")))
	sb.WriteString("\" ")
	sb.WriteString(strconv.FormatInt(s.Timestamp.UnixNano(), 10))
	return sb.String()
}

// CommitSnapshot writes the rebuilt option list to influxdb as a single point.
func (i *InfluxDB) CommitSnapshot(appCtx context.Context, s Snapshot) error {
	ctx, cancel := requestContext(appCtx, i.Cfg.ReqTimeoutSec)
	defer cancel()
	return i.WriteAPI.WriteRecord(ctx, influxLine(s))
}
