package quantile

import "acore/ports"

func completeList() []ports.QuantileAlgorithm {
	return []ports.QuantileAlgorithm{
		{Name: "linear_qr", AlgoID: AlgoLinear, Hyper: map[string]float64{"max_iter": 200}},
		{Name: "knn_k30", AlgoID: AlgoKNN, Hyper: map[string]float64{"n_neighbors": 30}},
		{Name: "knn_k100", AlgoID: AlgoKNN, Hyper: map[string]float64{"n_neighbors": 100}},
		{Name: "knn_k300", AlgoID: AlgoKNN, Hyper: map[string]float64{"n_neighbors": 300}},
		{Name: "xgb_d3_n100", AlgoID: AlgoBoosted, Hyper: map[string]float64{"max_depth": 3, "n_estimators": 100, "learning_rate": 0.1}},
		{Name: "xgb_d3_n250", AlgoID: AlgoBoosted, Hyper: map[string]float64{"max_depth": 3, "n_estimators": 250, "learning_rate": 0.1}},
		{Name: "xgb_d5_n250", AlgoID: AlgoBoosted, Hyper: map[string]float64{"max_depth": 5, "n_estimators": 250, "learning_rate": 0.1}},
		{Name: "qrf_n100_d10", AlgoID: AlgoForest, Hyper: map[string]float64{"n_estimators": 100, "max_depth": 10, "min_samples_leaf": 5}},
		{Name: "qrf_n250_d20", AlgoID: AlgoForest, Hyper: map[string]float64{"n_estimators": 250, "max_depth": 20, "min_samples_leaf": 5}},
	}
}

func smallList() []ports.QuantileAlgorithm {
	return []ports.QuantileAlgorithm{
		{Name: "linear_qr", AlgoID: AlgoLinear, Hyper: map[string]float64{"max_iter": 100}},
		{Name: "knn_k30", AlgoID: AlgoKNN, Hyper: map[string]float64{"n_neighbors": 30}},
		{Name: "xgb_d3_n100", AlgoID: AlgoBoosted, Hyper: map[string]float64{"max_depth": 3, "n_estimators": 100, "learning_rate": 0.1}},
		{Name: "qrf_n50_d10", AlgoID: AlgoForest, Hyper: map[string]float64{"n_estimators": 50, "max_depth": 10, "min_samples_leaf": 5}},
	}
}
