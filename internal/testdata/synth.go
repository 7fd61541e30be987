// Package testdata builds deterministic synthetic gene presence/absence
// matrices for tests.
package testdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/amrpredict/dataset"
)

// Phenotype labels used by the generator.
const (
	Resistant   = "Resistant"
	Susceptible = "Susceptible"
)

// Spec describes a synthetic matrix.
type Spec struct {
	Rows      int
	Positives int
	// Genes is the total number of predictor columns. The first Informative
	// genes track the label, the last Constant genes are always absent and
	// the rest are noise.
	Genes       int
	Informative int
	Constant    int
	Seed        uint64
}

// Workshop is the reference scenario: 100 genomes, 20 resistant, 20 genes of
// which 3 are never present.
var Workshop = Spec{Rows: 100, Positives: 20, Genes: 20, Informative: 3, Constant: 3, Seed: 7}

// GeneName returns the column name of gene j (0-based).
func GeneName(j int) string {
	return fmt.Sprintf("gene%02d", j+1)
}

// Matrix generates the FeatureMatrix for s. Resistant genomes come first.
func Matrix(s Spec) *dataset.FeatureMatrix {
	r := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))

	m := &dataset.FeatureMatrix{
		IDs:             make([]string, s.Rows),
		MetadataColumns: []string{"genome_id", "antibiotic"},
		Metadata: map[string][]string{
			"genome_id":  make([]string, s.Rows),
			"antibiotic": make([]string, s.Rows),
		},
		FeatureNames: make([]string, s.Genes),
		Labels:       make([]string, s.Rows),
	}
	for j := range m.FeatureNames {
		m.FeatureNames[j] = GeneName(j)
	}

	data := make([]float64, s.Rows*s.Genes)
	for i := 0; i < s.Rows; i++ {
		resistant := i < s.Positives
		m.IDs[i] = fmt.Sprintf("S%03d", i+1)
		m.Metadata["genome_id"][i] = fmt.Sprintf("562.%d", 1000+i)
		m.Metadata["antibiotic"][i] = "ampicillin"
		m.Labels[i] = Susceptible
		if resistant {
			m.Labels[i] = Resistant
		}
		for j := 0; j < s.Genes; j++ {
			var p float64
			switch {
			case j >= s.Genes-s.Constant:
				p = 0
			case j < s.Informative && resistant:
				p = 0.85
			case j < s.Informative:
				p = 0.1
			default:
				p = 0.35
			}
			if r.Float64() < p {
				data[i*s.Genes+j] = 1
			}
		}
	}
	m.X = mat.NewDense(s.Rows, s.Genes, data)
	return m
}

// WriteCSV writes m in the loader's input layout: sample_id, metadata,
// phenotype, then one column per gene.
func WriteCSV(w io.Writer, m *dataset.FeatureMatrix) error {
	cw := csv.NewWriter(w)
	header := append([]string{dataset.DefaultIDColumn}, m.MetadataColumns...)
	header = append(header, dataset.DefaultLabelColumn)
	header = append(header, m.FeatureNames...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range m.IDs {
		rec := []string{m.IDs[i]}
		for _, c := range m.MetadataColumns {
			rec = append(rec, m.Metadata[c][i])
		}
		rec = append(rec, m.Labels[i])
		for j := range m.FeatureNames {
			rec = append(rec, strconv.FormatFloat(m.X.At(i, j), 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
