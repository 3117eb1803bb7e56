// cmd/ingest validates candle files and stores them as named datasets in
// SQLite, where the simulation server and the batch scheduler can load them.
//
// Usage:
//
//	go run ./cmd/ingest --db=data/sim.db data/spy.csv data/qqq.json
//	go run ./cmd/ingest --url=https://example.com/spy.csv --name=spy
//	go run ./cmd/ingest --list
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"strategy-sim/internal/dataset"
	sqlitestore "strategy-sim/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/sim.db", "Path to SQLite database")
	url := flag.String("url", "", "Fetch one dataset over HTTP(S) instead of reading files")
	name := flag.String("name", "", "Dataset name (default: file base name)")
	list := flag.Bool("list", false, "List stored datasets and exit")
	del := flag.String("delete", "", "Delete the named dataset and exit")
	flag.Parse()

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[ingest] sqlite open failed: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch {
	case *list:
		infos, err := store.Datasets(ctx)
		if err != nil {
			log.Fatalf("[ingest] %v", err)
		}
		for _, d := range infos {
			fmt.Printf("%-24s %7d candles  %s .. %s\n", d.Name, d.Candles, d.FirstTS, d.LastTS)
		}
		return
	case *del != "":
		if err := store.DeleteDataset(ctx, *del); err != nil {
			log.Fatalf("[ingest] %v", err)
		}
		log.Printf("[ingest] deleted %q", *del)
		return
	}

	var sources []dataset.Source
	if *url != "" {
		sources = append(sources, dataset.NewHTTPSource(*url, *name))
	}
	for _, path := range flag.Args() {
		sources = append(sources, named{dataset.FileSource{Path: path}, *name, len(flag.Args()) == 1})
	}
	if len(sources) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	failed := 0
	for _, src := range sources {
		candles, err := dataset.Load(ctx, src)
		if err != nil {
			log.Printf("[ingest] rejected: %v", err)
			failed++
			continue
		}
		if err := store.SaveDataset(ctx, src.Name(), candles); err != nil {
			log.Printf("[ingest] %v", err)
			failed++
		}
	}
	if failed > 0 {
		log.Fatalf("[ingest] %d of %d datasets failed", failed, len(sources))
	}
}

// named lets --name override a single file's dataset name.
type named struct {
	dataset.FileSource
	override string
	apply    bool
}

func (n named) Name() string {
	if n.apply && n.override != "" {
		return n.override
	}
	return n.FileSource.Name()
}
