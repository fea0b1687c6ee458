package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"strconv"

	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/milkywaybrain/exchangeloader/internal/connector"
	"github.com/milkywaybrain/exchangeloader/internal/exchange"
	"github.com/milkywaybrain/exchangeloader/internal/selection"
	"github.com/rs/zerolog/log"
)

// This script queries the configured source for the exchange list and stores it in a csv file.
// Users can look up to this csv file to check the exchange names the widget will offer.
// CSV file is created at ./exchanges.csv by default.
func main() {
	cfgPath := flag.String("config", "./config.json", "configuration JSON file path")
	outPath := flag.String("out", "./exchanges.csv", "csv file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error().Err(err).Msg("error loading config")
		return
	}

	connector.InitREST(&cfg.Connection.REST)
	rest, err := connector.GetREST()
	if err != nil {
		log.Error().Err(err).Msg("REST connection")
		return
	}

	// Only fetching, the document holds no widget.
	loader := exchange.NewLoader(&cfg.Widget, exchange.NewRESTSource(rest, cfg.Source.Endpoint()), selection.NewDocument(), nil, log.Logger)
	list, err := loader.Fetch(context.Background())
	if err != nil {
		log.Error().Err(err).Str("url", cfg.Source.Endpoint()).Msg("exchange request for list")
		return
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Error().Err(err).Msg("csv file create")
		return
	}
	defer f.Close()

	if err = writeCSV(f, list); err != nil {
		log.Error().Err(err).Msg("csv file write")
		return
	}
	log.Info().Int("count", len(list)).Str("file", *outPath).Msg("exchanges stored")
}

// writeCSV writes one row per exchange, in list order, after a header row.
func writeCSV(out io.Writer, list exchange.List) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"position", "exchange"}); err != nil {
		return err
	}
	for i, name := range list {
		if err := w.Write([]string{strconv.Itoa(i + 1), name}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
