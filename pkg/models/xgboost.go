package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/HatiCode/wattcast/pkg/features"
)

// ErrMissingBaseScore is returned for a raw tree dump loaded without an
// explicit base score. dump_model does not export the global bias, and
// since XGBoost 2.0 it is estimated from the training targets.
var ErrMissingBaseScore = errors.New("xgboost: raw tree dump needs a base score")

// XGBoostModel evaluates a gradient boosted tree ensemble exported with
// booster.dump_model(fmt="json").
//
// The artifact is either the raw dump (a JSON array of trees) or an object:
//
//	{
//	  "base_score": 0.5,
//	  "feature_names": ["hour", "dayofweek", ...],
//	  "trees": [ ...dump... ]
//	}
//
// A raw dump must be given its base score with WithBaseScore. Splits may
// reference features by column name or by "f<index>".
//
// Evaluation follows XGBoost's single precision: features and split
// conditions are compared as float32 and leaves are summed in float32.
type XGBoostModel struct {
	name      string
	baseScore float32
	trees     []tree
}

// XGBoostOption configures ParseXGBoostModel.
type XGBoostOption func(*xgboostOptions)

type xgboostOptions struct {
	baseScore *float64
}

// WithBaseScore sets the global bias, overriding any base_score in the
// artifact.
func WithBaseScore(v float64) XGBoostOption {
	return func(o *xgboostOptions) {
		o.baseScore = &v
	}
}

type dumpNode struct {
	NodeID         int        `json:"nodeid"`
	Split          string     `json:"split"`
	SplitCondition float32    `json:"split_condition"`
	Yes            int        `json:"yes"`
	No             int        `json:"no"`
	Missing        int        `json:"missing"`
	Leaf           *float32   `json:"leaf"`
	Children       []dumpNode `json:"children"`
}

type dumpArtifact struct {
	BaseScore    *float64   `json:"base_score"`
	FeatureNames []string   `json:"feature_names"`
	Trees        []dumpNode `json:"trees"`
}

// node is a flattened tree node; feature is -1 for leaves.
type node struct {
	feature   int
	threshold float32
	yes       int
	no        int
	missing   int
	leaf      float32
}

type tree []node

// LoadXGBoostModel reads an XGBoost JSON dump from path.
func LoadXGBoostModel(path, name string, opts ...XGBoostOption) (*XGBoostModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xgboost: read model: %w", err)
	}
	return ParseXGBoostModel(data, name, opts...)
}

// ParseXGBoostModel builds a model from the bytes of an XGBoost JSON dump.
func ParseXGBoostModel(data []byte, name string, opts ...XGBoostOption) (*XGBoostModel, error) {
	var o xgboostOptions
	for _, opt := range opts {
		opt(&o)
	}

	var art dumpArtifact

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, errors.New("xgboost: empty model")
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &art.Trees); err != nil {
			return nil, fmt.Errorf("xgboost: decode trees: %w", err)
		}
	default:
		if err := json.Unmarshal(trimmed, &art); err != nil {
			return nil, fmt.Errorf("xgboost: decode model: %w", err)
		}
	}

	if len(art.Trees) == 0 {
		return nil, errors.New("xgboost: model has no trees")
	}

	if len(art.FeatureNames) > 0 {
		if len(art.FeatureNames) != features.NumFeatures {
			return nil, fmt.Errorf("xgboost: model expects %d features, vector has %d", len(art.FeatureNames), features.NumFeatures)
		}
		for i, n := range art.FeatureNames {
			if n != features.Names[i] {
				return nil, fmt.Errorf("xgboost: feature %d is %q, want %q", i, n, features.Names[i])
			}
		}
	}

	baseScore := art.BaseScore
	if o.baseScore != nil {
		baseScore = o.baseScore
	}
	if baseScore == nil {
		return nil, ErrMissingBaseScore
	}

	m := &XGBoostModel{
		name:      name,
		baseScore: float32(*baseScore),
		trees:     make([]tree, 0, len(art.Trees)),
	}
	if m.name == "" {
		m.name = "xgboost"
	}

	for i := range art.Trees {
		t, err := flatten(&art.Trees[i])
		if err != nil {
			return nil, fmt.Errorf("xgboost: tree %d: %w", i, err)
		}
		m.trees = append(m.trees, t)
	}

	return m, nil
}

// Name returns the model identifier.
func (m *XGBoostModel) Name() string {
	return m.name
}

// Trees returns the number of trees in the ensemble.
func (m *XGBoostModel) Trees() int {
	return len(m.trees)
}

// BaseScore returns the global bias added to the tree sum.
func (m *XGBoostModel) BaseScore() float64 {
	return float64(m.baseScore)
}

// Predict sums the leaf values reached in every tree, in tree order.
func (m *XGBoostModel) Predict(ctx context.Context, v features.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sum := m.baseScore
	for i, t := range m.trees {
		leaf, err := t.eval(v)
		if err != nil {
			return 0, fmt.Errorf("xgboost: tree %d: %w", i, err)
		}
		sum += leaf
	}
	return float64(sum), nil
}

func (t tree) eval(v features.Vector) (float32, error) {
	id := 0
	// a well-formed tree reaches a leaf in at most len(t) hops
	for hops := 0; hops <= len(t); hops++ {
		if id < 0 || id >= len(t) {
			return 0, fmt.Errorf("node %d out of range", id)
		}
		n := t[id]
		if n.feature < 0 {
			return n.leaf, nil
		}
		x := v[n.feature]
		switch {
		case math.IsNaN(x):
			id = n.missing
		case float32(x) < n.threshold:
			id = n.yes
		default:
			id = n.no
		}
	}
	return 0, errors.New("cycle detected")
}

func flatten(root *dumpNode) (tree, error) {
	var nodes []*dumpNode
	var walk func(n *dumpNode)
	walk = func(n *dumpNode) {
		nodes = append(nodes, n)
		for i := range n.Children {
			walk(&n.Children[i])
		}
	}
	walk(root)

	t := make(tree, len(nodes))
	seen := make([]bool, len(nodes))
	for _, n := range nodes {
		if n.NodeID < 0 || n.NodeID >= len(nodes) {
			return nil, fmt.Errorf("node id %d out of range", n.NodeID)
		}
		if seen[n.NodeID] {
			return nil, fmt.Errorf("duplicate node id %d", n.NodeID)
		}
		seen[n.NodeID] = true

		if n.Leaf != nil {
			t[n.NodeID] = node{feature: -1, leaf: *n.Leaf}
			continue
		}

		idx, err := splitIndex(n.Split)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", n.NodeID, err)
		}
		t[n.NodeID] = node{
			feature:   idx,
			threshold: n.SplitCondition,
			yes:       n.Yes,
			no:        n.No,
			missing:   n.Missing,
		}
	}

	return t, nil
}

func splitIndex(split string) (int, error) {
	if i, ok := features.Index(split); ok {
		return i, nil
	}
	if rest, ok := strings.CutPrefix(split, "f"); ok {
		if i, err := strconv.Atoi(rest); err == nil && i >= 0 && i < features.NumFeatures {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown split feature %q", split)
}
