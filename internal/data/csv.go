package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Schema tells LoadCSV which columns carry the label and the protected
// attributes. Every other column is a feature; protected columns are
// features too unless ExcludeProtected is set.
type Schema struct {
	Label            string   `yaml:"label" validate:"required"`
	Protected        []string `yaml:"protected" validate:"required,min=1,dive,required"`
	Favorable        float64  `yaml:"favorable"`
	Unfavorable      float64  `yaml:"unfavorable"`
	ExcludeProtected bool     `yaml:"exclude_protected"`
}

func LoadCSV(path string, s Schema) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("read %s: no data rows", path)
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	labelCol, ok := col[s.Label]
	if !ok {
		return nil, fmt.Errorf("read %s: label column %q not found", path, s.Label)
	}
	protCols := make([]int, len(s.Protected))
	isProt := make(map[int]bool, len(s.Protected))
	for k, name := range s.Protected {
		c, ok := col[name]
		if !ok {
			return nil, fmt.Errorf("read %s: protected column %q not found", path, name)
		}
		protCols[k] = c
		isProt[c] = true
	}
	var featCols []int
	var featNames []string
	for i, h := range header {
		if i == labelCol || (s.ExcludeProtected && isProt[i]) {
			continue
		}
		featCols = append(featCols, i)
		featNames = append(featNames, h)
	}

	ds := &Dataset{
		Features:         make([][]float64, 0, len(rows)-1),
		Labels:           make([]float64, 0, len(rows)-1),
		Protected:        make([][]float64, 0, len(rows)-1),
		FeatureNames:     featNames,
		ProtectedNames:   append([]string(nil), s.Protected...),
		FavorableLabel:   s.Favorable,
		UnfavorableLabel: s.Unfavorable,
	}
	for r, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d", ErrShapeMismatch, r+2, len(row), len(header))
		}
		x := make([]float64, len(featCols))
		for k, c := range featCols {
			if x[k], err = parseCell(row[c], r+2, header[c]); err != nil {
				return nil, err
			}
		}
		p := make([]float64, len(protCols))
		for k, c := range protCols {
			if p[k], err = parseCell(row[c], r+2, header[c]); err != nil {
				return nil, err
			}
		}
		y, err := parseCell(row[labelCol], r+2, s.Label)
		if err != nil {
			return nil, err
		}
		ds.Features = append(ds.Features, x)
		ds.Protected = append(ds.Protected, p)
		ds.Labels = append(ds.Labels, y)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// WriteCSV writes features, any protected attribute not already a feature,
// and finally the label under labelName.
func WriteCSV(path string, ds *Dataset, labelName string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	inFeatures := make(map[string]bool, len(ds.FeatureNames))
	for _, n := range ds.FeatureNames {
		inFeatures[n] = true
	}
	var extra []int
	header := append([]string(nil), ds.FeatureNames...)
	for k, n := range ds.ProtectedNames {
		if !inFeatures[n] {
			extra = append(extra, k)
			header = append(header, n)
		}
	}
	header = append(header, labelName)

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for i := range ds.Labels {
		k := 0
		for _, v := range ds.Features[i] {
			rec[k] = strconv.FormatFloat(v, 'g', -1, 64)
			k++
		}
		for _, j := range extra {
			rec[k] = strconv.FormatFloat(ds.Protected[i][j], 'g', -1, 64)
			k++
		}
		rec[k] = strconv.FormatFloat(ds.Labels[i], 'g', -1, 64)
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func parseCell(s string, line int, column string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d column %q: %w", line, column, err)
	}
	return v, nil
}
