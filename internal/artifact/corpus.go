package artifact

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/goccy/go-json"
)

// ErrFormat is returned for corpus files with an unrecognized extension.
var ErrFormat = errors.New("unsupported corpus format")

// Corpus is a loaded reference corpus. Order lists the column names in file
// order when the format defines one.
type Corpus struct {
	Records []domain.Record
	Order   []string
}

// Schema infers the corpus schema.
func (c Corpus) Schema() domain.Schema {
	return domain.InferSchema(c.Records, c.Order)
}

// LoadCorpus reads a historical corpus from a .json (array of objects),
// .jsonl/.ndjson (one object per line) or .csv file.
func LoadCorpus(path string) (Corpus, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return Corpus{}, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var c Corpus
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		c, err = ReadJSON(f)
	case ".jsonl", ".ndjson":
		c, err = ReadJSONLines(f)
	case ".csv":
		c, err = ReadCSV(f)
	default:
		return Corpus{}, fmt.Errorf("%w: %s", ErrFormat, filepath.Ext(path))
	}
	if err != nil {
		return Corpus{}, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return c, nil
}

// ReadJSON reads a JSON array of flat objects.
func ReadJSON(r io.Reader) (Corpus, error) {
	var records []domain.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return Corpus{}, fmt.Errorf("decode json: %w", err)
	}
	for _, rec := range records {
		normalizeGeo(rec)
	}
	return Corpus{Records: records}, nil
}

// ReadJSONLines reads one flat JSON object per line. Blank lines are skipped.
func ReadJSONLines(r io.Reader) (Corpus, error) {
	var records []domain.Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return Corpus{}, fmt.Errorf("line %d: %w", line, err)
		}
		normalizeGeo(rec)
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return Corpus{}, fmt.Errorf("scan jsonl: %w", err)
	}
	return Corpus{Records: records}, nil
}

// ReadCSV reads a CSV file with a header row. Empty cells are absent, state
// and county stay strings, other cells that parse as numbers become float64
// and everything else stays a string.
func ReadCSV(r io.Reader) (Corpus, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return Corpus{}, fmt.Errorf("read csv header: %w", err)
	}
	header = append([]string(nil), header...)
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var records []domain.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Corpus{}, fmt.Errorf("read csv: %w", err)
		}
		rec := make(domain.Record, len(header))
		for i, name := range header {
			if name == domain.ColState || name == domain.ColCounty {
				rec[name] = geoCell(row[i])
				continue
			}
			rec[name] = parseCell(row[i])
		}
		records = append(records, rec)
	}
	return Corpus{Records: records, Order: header}, nil
}

// geoCell keeps state and county codes verbatim so "06" stays "06".
func geoCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil
	}
	return s
}

func parseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// normalizeGeo stores state and county as strings whatever their encoding
// in the source file.
func normalizeGeo(rec domain.Record) {
	for _, name := range []string{domain.ColState, domain.ColCounty} {
		if s, ok := rec.String(name); ok {
			rec[name] = s
		} else if _, present := rec[name]; present {
			rec[name] = nil
		}
	}
}
