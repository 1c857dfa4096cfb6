// Package farecast predicts ride fares for a trip and recommends the
// cheapest hour to travel within a look-ahead window.
//
// A random forest regressor is trained on historical trips (distance,
// duration, hour of day, day of week, transport type, provider). Feature
// derivation, category encoding, standardization and the forest itself are
// persisted together as a versioned bundle so that prediction always sees
// the same column layout as training.
//
// # Quick Start
//
//	records := dataset.Synthetic(dataset.SyntheticConfig{Samples: 2000, Seed: 42})
//
//	m := fare.NewModel()
//	meta, err := m.Train(records)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("R2=%.3f MAE=%.2f\n", meta.R2, meta.MAE)
//
//	price, err := m.PredictFare(fare.TripRecord{
//	    DistanceKm:      12,
//	    DurationMins:    36,
//	    Hour:            8,
//	    DayOfWeek:       1,
//	    TransportType:   "cab",
//	    ServiceProvider: "obeer",
//	})
//
//	rec, err := m.PredictBestTime(fare.BestTimeQuery{
//	    DistanceKm:      12,
//	    TransportType:   "cab",
//	    ServiceProvider: "obeer",
//	    HoursAhead:      24,
//	    Now:             time.Now(),
//	})
//
// # Packages
//
//   - fare: features, training, prediction, best-time search, model holder
//   - fare/store: bundle persistence (directory per version, or SQLite)
//   - dataset: CSV loading and the synthetic trip generator
//   - sklearn/tree, sklearn/ensemble: CART regression tree and random forest
//   - linear: least-squares baseline reported next to the forest
//   - preprocessing: StandardScaler and label encoders
//   - metrics, model_selection: regression metrics and train/test split
//   - report: feature importance table and bar chart
//   - config: YAML + environment configuration
//   - internal/server: HTTP API (gin)
//   - internal/retrain: scheduled retraining (cron)
//   - cmd/farecast: command line entry point
package farecast
