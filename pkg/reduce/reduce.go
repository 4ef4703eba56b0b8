// Package reduce provides the reducers a coordinator can apply to the votes
// of a reduce round.
package reduce

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/absmach/rendezvous/pkg/collective"
)

const (
	KindRankZero = "rank0"
	KindConcat   = "concat"
	KindMean     = "mean"
	KindWasm     = "wasm"
)

var (
	ErrNoVotes         = errors.New("no votes provided for reduction")
	ErrMissingRankZero = errors.New("rank zero vote missing")
	ErrShapeMismatch   = errors.New("vote shape mismatch")
	ErrUnknownReducer  = errors.New("unknown reducer")
)

// Reducer folds the votes of a reduce round into a single JSON value.
type Reducer interface {
	Reduce(votes []collective.Vote[json.RawMessage]) (json.RawMessage, error)
}

// New returns a built-in reducer by kind, defaulting to concat. Wasm
// reducers carry a compiled module and are built with NewWasm instead.
func New(kind string) (Reducer, error) {
	switch kind {
	case KindRankZero:
		return NewRankZero(), nil
	case KindConcat, "":
		return NewConcat(), nil
	case KindMean:
		return NewMean(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownReducer, kind)
	}
}

type rankZeroReducer struct{}

// NewRankZero returns a reducer that selects rank 0's vote, making a reduce
// round behave like a broadcast.
func NewRankZero() Reducer {
	return &rankZeroReducer{}
}

func (r *rankZeroReducer) Reduce(votes []collective.Vote[json.RawMessage]) (json.RawMessage, error) {
	if len(votes) == 0 {
		return nil, ErrNoVotes
	}

	for _, v := range votes {
		if v.Rank == 0 {
			return v.Data, nil
		}
	}

	return nil, ErrMissingRankZero
}

type concatReducer struct{}

// NewConcat returns a reducer that collects all votes into a JSON array in
// rank order. It works for payloads of any shape.
func NewConcat() Reducer {
	return &concatReducer{}
}

func (r *concatReducer) Reduce(votes []collective.Vote[json.RawMessage]) (json.RawMessage, error) {
	if len(votes) == 0 {
		return nil, ErrNoVotes
	}

	out := make([]json.RawMessage, 0, len(votes))
	for _, v := range votes {
		out = append(out, v.Data)
	}

	return json.Marshal(out)
}

type meanReducer struct{}

// NewMean returns a reducer that averages votes element-wise. Every vote
// must be an object of the same shape whose values are numbers or arrays of
// numbers, the usual encoding of model weights.
func NewMean() Reducer {
	return &meanReducer{}
}

func (r *meanReducer) Reduce(votes []collective.Vote[json.RawMessage]) (json.RawMessage, error) {
	if len(votes) == 0 {
		return nil, ErrNoVotes
	}

	sums := make(map[string][]float64)
	scalars := make(map[string]bool)

	for i, vote := range votes {
		var update map[string]any
		if err := json.Unmarshal(vote.Data, &update); err != nil {
			return nil, fmt.Errorf("rank %d vote is not a JSON object: %w", vote.Rank, err)
		}
		if i > 0 && len(update) != len(sums) {
			return nil, fmt.Errorf("%w: rank %d carries %d entries, expected %d", ErrShapeMismatch, vote.Rank, len(update), len(sums))
		}

		for name, value := range update {
			switch v := value.(type) {
			case float64:
				if i == 0 {
					sums[name] = make([]float64, 1)
					scalars[name] = true
				}
				acc, ok := sums[name]
				if !ok || !scalars[name] {
					return nil, fmt.Errorf("%w: rank %d entry %q", ErrShapeMismatch, vote.Rank, name)
				}
				acc[0] += v
			case []any:
				if i == 0 {
					sums[name] = make([]float64, len(v))
				}
				acc, ok := sums[name]
				if !ok || scalars[name] || len(acc) != len(v) {
					return nil, fmt.Errorf("%w: rank %d entry %q", ErrShapeMismatch, vote.Rank, name)
				}
				for j, elem := range v {
					f, ok := elem.(float64)
					if !ok {
						return nil, fmt.Errorf("%w: rank %d entry %q[%d] is not a number", ErrShapeMismatch, vote.Rank, name, j)
					}
					acc[j] += f
				}
			default:
				return nil, fmt.Errorf("%w: rank %d entry %q is not a number or an array of numbers", ErrShapeMismatch, vote.Rank, name)
			}
		}
	}

	n := float64(len(votes))
	out := make(map[string]any, len(sums))
	for name, acc := range sums {
		if scalars[name] {
			out[name] = acc[0] / n

			continue
		}
		mean := make([]float64, len(acc))
		for j, sum := range acc {
			mean[j] = sum / n
		}
		out[name] = mean
	}

	return json.Marshal(out)
}
