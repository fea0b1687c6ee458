package storage

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/pkg/errors"
)

// ElasticSearch is for connecting and indexing data to elastic search.
type ElasticSearch struct {
	ES        *elasticsearch.Client
	IndexName string
	Cfg       *config.ES
}

var _es *ElasticSearch

// esSnapshot is the indexed document of one snapshot.
type esSnapshot struct {
	Widget    string   `json:"widget"`
	Exchanges []string `json:"exchanges"`
	Count     int      `json:"count"`
	Timestamp string   `json:"timestamp"`
}

// InitElasticSearch initializes elastic search connection with configured values.
func InitElasticSearch(cfg *config.ES) (*ElasticSearch, error) {
	if _es == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = cfg.MaxIdleConns
		t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
		t.ResponseHeaderTimeout = time.Duration(cfg.ReqTimeoutSec) * time.Second
		es, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Addresses,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: t,
		})
		if err != nil {
			return nil, err
		}

		ctx, cancel := requestContext(context.Background(), cfg.ReqTimeoutSec)
		defer cancel()
		res, err := es.Ping(es.Ping.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		res.Body.Close()
		if res.IsError() {
			return nil, errors.New("elastic search ping : " + res.Status())
		}
		_es = &ElasticSearch{
			ES:        es,
			IndexName: cfg.IndexName,
			Cfg:       cfg,
		}
		register(config.ELASTICSEARCH, _es)
	}
	return _es, nil
}

// CommitSnapshot indexes the rebuilt option list as one document.
func (e *ElasticSearch) CommitSnapshot(appCtx context.Context, s Snapshot) error {
	doc, err := jsoniter.Marshal(esSnapshot{
		Widget:    s.Widget,
		Exchanges: s.Exchanges,
		Count:     len(s.Exchanges),
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(appCtx, e.Cfg.ReqTimeoutSec)
	defer cancel()
	res, err := e.ES.Index(e.IndexName, bytes.NewReader(doc), e.ES.Index.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.New("elastic search index : " + res.String())
	}
	return nil
}
