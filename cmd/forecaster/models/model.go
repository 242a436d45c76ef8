// Package models selects and loads the predictor configured for the forecaster.
package models

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/HatiCode/wattcast/cmd/forecaster/config"
	"github.com/HatiCode/wattcast/pkg/httpx"
	"github.com/HatiCode/wattcast/pkg/models"
)

// New loads the model named by cfg.Model. A returned error leaves the
// forecaster running without a model.
func New(cfg *config.Config, logger *slog.Logger) (models.Model, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Model {
	case config.ModelXGBoost:
		var opts []models.XGBoostOption
		baseScore, ok, err := cfg.ModelBaseScore()
		if err != nil {
			return nil, err
		}
		if ok {
			opts = append(opts, models.WithBaseScore(baseScore))
		}

		m, err := models.LoadXGBoostModel(cfg.ModelPath, cfg.ModelName, opts...)
		if err != nil {
			if errors.Is(err, models.ErrMissingBaseScore) {
				return nil, fmt.Errorf("%w: set -model-base-score or MODEL_BASE_SCORE", err)
			}
			return nil, err
		}
		logger.Info("loaded xgboost model",
			"path", cfg.ModelPath,
			"name", m.Name(),
			"trees", m.Trees(),
			"base_score", m.BaseScore(),
		)
		return m, nil

	case config.ModelBYOM:
		client, err := httpx.NewClient(cfg.TLS, cfg.BYOMTimeout)
		if err != nil {
			return nil, fmt.Errorf("create byom client: %w", err)
		}
		logger.Info("initializing BYOM model",
			"url", cfg.BYOMURL,
			"name", cfg.ModelName,
			"value_path", cfg.BYOMValuePath,
			"tls", cfg.TLS.Enabled,
		)
		return models.NewBYOMModel(cfg.BYOMURL, cfg.ModelName, cfg.BYOMValuePath, client), nil

	case config.ModelBaseline:
		logger.Info("initializing baseline model",
			"seasonal_weight", models.DefaultSeasonalWeight,
			"trend_damping", models.DefaultTrendDamping,
		)
		return models.NewBaselineModel(models.DefaultSeasonalWeight, models.DefaultTrendDamping)

	default:
		return nil, fmt.Errorf("invalid model type %q", cfg.Model)
	}
}
