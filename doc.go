// Package amrpredict predicts antimicrobial resistance phenotypes from a
// genome x gene presence/absence matrix.
//
// A run follows a fixed sequence of stages:
//
//   - dataset: load the CSV matrix and binarize the phenotype column
//   - sklearn/model_selection: stratified train / validation / test split
//   - preprocessing: zero-variance filter followed by normalization
//   - tuning: elastic-net logistic and random forest grid searches scored
//     by ROC-AUC and PR-AUC, best entry selection and the last fit
//   - importance: coefficient and impurity based predictor rankings
//   - pipeline: wires the stages together and saves model bundles
//
// The amrpredict command (cmd/amrpredict) exposes the workflow:
//
//	amrpredict run genomes.csv --output runs
//	amrpredict split genomes.csv --format yaml
//	amrpredict grid
//	amrpredict predict --model runs/<run id>/logistic.gob new_genomes.csv
//
// Library use goes through pipeline.Run:
//
//	m, err := dataset.LoadFile("genomes.csv", cfg.LoadOptions())
//	if err != nil {
//	    return err
//	}
//	res, err := pipeline.Run(ctx, cfg, m)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Logistic.Final.TestROCAUC)
package amrpredict
