package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Dataset is the long-format observation table saemfit expects: one row per
// observation, with the dosing event carried alongside it in the same row
// (so the demo one-compartment solver below never needs a separate event
// table). Columns: id,time,dose,dv,cens,limit,endpoint.
type Dataset struct {
	ID       []string
	Time     []float64
	Dose     []float64
	DV       []float64
	Cens     []int
	Limit    []float64
	Endpoint []string
}

// LoadCSVToDataset reads CSV file:
//
//   - The first row is a header naming id,time,dose,dv[,cens,limit,endpoint]
//   - All remaining rows are one observation each
//   - cens/limit/endpoint are optional columns; missing ones default to
//     uncensored / no limit / a single endpoint named "0"
func LoadCSVToDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"id", "time", "dose", "dv"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q in %s", required, path)
		}
	}

	ds := &Dataset{}
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}

		ds.ID = append(ds.ID, record[col["id"]])

		t, err := strconv.ParseFloat(record[col["time"]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse time: %w", row+2, err)
		}
		ds.Time = append(ds.Time, t)

		d, err := strconv.ParseFloat(record[col["dose"]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse dose: %w", row+2, err)
		}
		ds.Dose = append(ds.Dose, d)

		y, err := strconv.ParseFloat(record[col["dv"]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse dv: %w", row+2, err)
		}
		ds.DV = append(ds.DV, y)

		cens := 0
		if ci, ok := col["cens"]; ok && record[ci] != "" {
			cens, err = strconv.Atoi(record[ci])
			if err != nil {
				return nil, fmt.Errorf("row %d: parse cens: %w", row+2, err)
			}
		}
		ds.Cens = append(ds.Cens, cens)

		limit := math.Inf(-1)
		if li, ok := col["limit"]; ok && record[li] != "" {
			limit, err = strconv.ParseFloat(record[li], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parse limit: %w", row+2, err)
			}
		}
		ds.Limit = append(ds.Limit, limit)

		endpoint := "0"
		if ei, ok := col["endpoint"]; ok && record[ei] != "" {
			endpoint = record[ei]
		}
		ds.Endpoint = append(ds.Endpoint, endpoint)

		row++
	}

	if row == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return ds, nil
}
