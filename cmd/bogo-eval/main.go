// cmd/bogo-eval/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"bogo/internal/pkg/logger"
	"bogo/internal/service/promotion/application"
	"bogo/internal/service/promotion/domain"
	"bogo/internal/service/promotion/infrastructure"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// bogo-eval 离线评估一条规则，用于重放审计事件或调试规则配置。
//
//	bogo-eval -rule rule.json -cart cart.json [-collections collections.yaml]
//
// collections.yaml 是 collection ID 到商品 ID 列表的映射。
func main() {
	rulePath := flag.String("rule", "", "path to the rule config JSON")
	cartPath := flag.String("cart", "", "path to the cart snapshot JSON")
	collectionsPath := flag.String("collections", "", "optional YAML map of collection id to product ids")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Setup("bogo-eval", *level, true)

	if *rulePath == "" || *cartPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*rulePath, *cartPath, *collectionsPath); err != nil {
		log.Error().Err(err).Msg("Evaluation failed")
		os.Exit(1)
	}
}

func run(rulePath, cartPath, collectionsPath string) error {
	var raw domain.RuleConfig
	if err := readJSON(rulePath, &raw); err != nil {
		return err
	}
	var cart domain.CartSnapshot
	if err := readJSON(cartPath, &cart); err != nil {
		return err
	}
	collections, err := readCollections(collectionsPath)
	if err != nil {
		return err
	}

	cfg, err := domain.Validate(raw)
	if err != nil {
		return err
	}
	if err := cart.Validate(); err != nil {
		return err
	}
	cfg, err = application.ExpandCollections(context.Background(), collections, cfg)
	if err != nil {
		return err
	}

	eval := domain.EvaluateDetailed(cfg, cart)
	log.Info().
		Str("outcome", string(eval.Outcome)).
		Int("trigger_quantity", eval.TriggerQuantity).
		Int("free_units", eval.FreeUnits).
		Int("discounted_units", eval.Plan.DiscountedUnits()).
		Msg("Rule evaluated")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(eval.Plan)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	return errors.Wrapf(json.Unmarshal(data, v), "failed to parse %s", path)
}

func readCollections(path string) (infrastructure.StaticCollectionResolver, error) {
	collections := infrastructure.StaticCollectionResolver{}
	if path == "" {
		return collections, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	if err := yaml.Unmarshal(data, &collections); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return collections, nil
}
