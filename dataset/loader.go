package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
	"github.com/YuminosukeSato/amrpredict/pkg/log"
)

// Default column names of the workshop input files.
const (
	DefaultIDColumn    = "sample_id"
	DefaultLabelColumn = "phenotype"
)

// DefaultMetadataColumns are carried through but never used as predictors.
var DefaultMetadataColumns = []string{"genome_id", "assembly_accession", "antibiotic", "drug_class"}

// LoadOptions controls how a delimited file is mapped onto a FeatureMatrix.
type LoadOptions struct {
	IDColumn    string
	LabelColumn string
	// MetadataColumns absent from the header are skipped.
	MetadataColumns []string
	Delimiter       rune
	// Unlabeled accepts a file without the label column (scoring new genomes).
	// Labels are then empty strings.
	Unlabeled bool
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.IDColumn == "" {
		o.IDColumn = DefaultIDColumn
	}
	if o.LabelColumn == "" {
		o.LabelColumn = DefaultLabelColumn
	}
	if o.MetadataColumns == nil {
		o.MetadataColumns = DefaultMetadataColumns
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	return o
}

// LoadFile opens path and parses it with LoadCSV.
func LoadFile(path string, opts LoadOptions) (*FeatureMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open feature matrix %s", path)
	}
	defer f.Close()

	m, err := LoadCSV(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	log.GetLoggerWithName("dataset").Info("Feature matrix loaded",
		log.PathKey, path,
		log.SamplesKey, m.NRows(),
		log.FeaturesKey, m.NFeatures(),
	)
	return m, nil
}

// LoadCSV parses a header-first delimited table. The ID and label columns are
// required, known metadata columns are kept as strings and every remaining
// column must be numeric.
func LoadCSV(r io.Reader, opts LoadOptions) (*FeatureMatrix, error) {
	opts = opts.withDefaults()

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "missing header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	layout, err := resolveLayout(header, opts)
	if err != nil {
		return nil, err
	}

	m := &FeatureMatrix{
		Metadata:     make(map[string][]string, len(layout.metadata)),
		FeatureNames: make([]string, len(layout.features)),
	}
	for _, c := range layout.metadata {
		m.MetadataColumns = append(m.MetadataColumns, header[c])
	}
	for j, c := range layout.features {
		m.FeatureNames[j] = header[c]
	}

	seen := make(map[string]int)
	var values []float64
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "read line %d", line)
		}

		id := strings.TrimSpace(record[layout.id])
		if prev, dup := seen[id]; dup {
			return nil, errors.NewConfigErrorf(opts.IDColumn,
				"duplicate sample id %q on lines %d and %d", id, prev, line)
		}
		seen[id] = line
		m.IDs = append(m.IDs, id)
		label := ""
		if layout.label >= 0 {
			label = strings.TrimSpace(record[layout.label])
		}
		m.Labels = append(m.Labels, label)
		for _, c := range layout.metadata {
			m.Metadata[header[c]] = append(m.Metadata[header[c]], record[c])
		}
		for _, c := range layout.features {
			cell := strings.TrimSpace(record[c])
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.NewValueError("LoadCSV",
					"line "+strconv.Itoa(line)+", column "+strconv.Quote(header[c])+": non-numeric value "+strconv.Quote(cell))
			}
			values = append(values, v)
		}
	}

	if len(m.IDs) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "feature matrix has no rows")
	}
	m.X = mat.NewDense(len(m.IDs), len(m.FeatureNames), values)
	return m, nil
}

type columnLayout struct {
	id       int
	label    int
	metadata []int
	features []int
}

func resolveLayout(header []string, opts LoadOptions) (columnLayout, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[h]; dup {
			return columnLayout{}, errors.NewConfigErrorf("data", "duplicate column %q in header", h)
		}
		index[h] = i
	}

	layout := columnLayout{}
	var ok bool
	if layout.id, ok = index[opts.IDColumn]; !ok {
		return columnLayout{}, errors.NewConfigErrorf("data.id_column", "column %q not found in header", opts.IDColumn)
	}
	if layout.label, ok = index[opts.LabelColumn]; !ok {
		if !opts.Unlabeled {
			return columnLayout{}, errors.NewConfigErrorf("data.label_column", "column %q not found in header", opts.LabelColumn)
		}
		layout.label = -1
	}

	reserved := map[int]bool{layout.id: true}
	if layout.label >= 0 {
		reserved[layout.label] = true
	}
	for _, name := range opts.MetadataColumns {
		if c, ok := index[name]; ok && !reserved[c] {
			layout.metadata = append(layout.metadata, c)
			reserved[c] = true
		}
	}
	for i := range header {
		if !reserved[i] {
			layout.features = append(layout.features, i)
		}
	}
	if len(layout.features) == 0 {
		return columnLayout{}, errors.NewConfigError("data", "no predictor columns after removing id, label and metadata columns")
	}
	return layout, nil
}
