// Command mapgen generates a map offline and writes the transmit-format
// documents to stdout or a directory, useful for tuning generation
// parameters without running a server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greylag/landgrab/server/internal/logger"
	"github.com/greylag/landgrab/server/internal/mapgen"
	"github.com/greylag/landgrab/server/internal/mapstore"
)

func main() {
	logger.Init()

	width := flag.Int("width", 300, "map width in cells")
	height := flag.Int("height", 300, "map height in cells")
	blobs := flag.Int("blobs", 5, "number of landmass anchors")
	seed := flag.Uint("seed", 0, "generation seed (0 picks from the clock)")
	configPath := flag.String("config", "", "path to a JSON generation config")
	outDir := flag.String("out", "", "output directory (empty prints a summary only)")
	chunkRows := flag.Int("chunk-rows", 32, "rows per output chunk")
	flag.Parse()

	var raw json.RawMessage
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Config read failed")
		}
		raw = data
	}
	cfg, err := mapgen.ParseConfig(raw)
	if err != nil {
		log.Fatal().Err(err).Msg("Config parse failed")
	}

	s := uint32(*seed)
	if s == 0 {
		s = uint32(time.Now().UnixNano())
	}

	start := time.Now()
	m, err := mapgen.Generate(context.Background(), *width, *height, *blobs, s, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Generation failed")
	}
	land := m.LandCells()
	log.Info().Uint32("seed", s).Int("width", *width).Int("height", *height).
		Int("landCells", land).
		Float64("landFraction", float64(land)/float64(*width**height)).
		Dur("took", time.Since(start)).
		Msg("Map generated")

	if *outDir == "" {
		return
	}
	if err := writeDocuments(m, *outDir, *chunkRows); err != nil {
		log.Fatal().Err(err).Msg("Write failed")
	}
	log.Info().Str("dir", *outDir).Msg("Map documents written")
}

func writeDocuments(m *mapgen.Map, dir string, chunkRows int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "metadata.json"), mapstore.MetadataFor(m)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "mappings.json"), mapstore.DefaultMappings()); err != nil {
		return err
	}
	for start := 0; start < m.Height; start += chunkRows {
		end := min(start+chunkRows, m.Height)
		chunk, err := mapstore.EncodeRows(m, start, end)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("chunk_%05d.json", start)
		if err := writeJSON(filepath.Join(dir, name), chunk); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
