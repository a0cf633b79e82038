// Package hotelres predicts whether a hotel reservation will be cancelled.
//
// The repository holds a batch training pipeline and an HTTP service that
// serves the trained model. Both are driven by the hotelres command:
//
//	hotelres ingest    # raw CSV -> artifacts/raw/{train,test}.csv
//	hotelres process   # clean, encode, balance, select features
//	hotelres train     # hyperparameter search, evaluation, model bundle
//	hotelres run       # all three stages in order
//	hotelres serve     # web form and JSON API on server.port
//
// # Configuration
//
// Settings come from config/config.yaml, overridden by HOTELRES_SECTION__KEY
// environment variables:
//
//	HOTELRES_SERVER__PORT=9000 hotelres serve
//
// # Packages
//
//   - internal/config: typed configuration loaded with koanf
//   - internal/ingest: dataset download from a file, HTTP or GCS source
//   - internal/pipeline: processing and training stages, model bundle, reports
//   - internal/server: chi router, prediction handlers, model hot reload
//   - internal/store: SQLite prediction log
//   - dataset: in-memory CSV frame with typed columns
//   - preprocessing: label encoding, skew correction, SMOTE, feature selection
//   - sklearn/lightgbm: gradient boosted decision tree classifier and search
//   - metrics: classification metrics
//   - core/model, core/parallel: shared estimator interfaces and worker helpers
//   - pkg/errors, pkg/log: error types and structured logging
//
// # Library use
//
// The classifier can be used on its own:
//
//	clf := lightgbm.NewLGBMClassifier().
//	    WithNumIterations(200).
//	    WithNumLeaves(31)
//	if err := clf.Fit(X, y); err != nil {
//	    log.Fatal(err)
//	}
//	proba, err := clf.PredictProba(XTest)
package hotelres
