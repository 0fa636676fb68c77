package metric

import (
	"fmt"
	"math"
	"sort"

	"github.com/flambeai/flambe-go/tensor"
)

// Accuracy is the fraction of correct predictions.
//
// Predictions with one more dimension than the target are class scores and
// are reduced with argmax over the last dimension. Predictions shaped like
// the target are rounded to the nearest integer label.
func Accuracy() Metric {
	return New("Accuracy", func(pred, target *tensor.Tensor) (float64, error) {
		var labels *tensor.Tensor
		switch pred.Dims() {
		case target.Dims() + 1:
			var err error
			if labels, err = pred.Argmax(); err != nil {
				return 0, err
			}
		case target.Dims():
			values := pred.Data()
			for i, v := range values {
				values[i] = float32(math.Round(float64(v)))
			}
			var err error
			if labels, err = tensor.New(values, pred.Shape()...); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("%w: prediction %v cannot be compared to target %v", tensor.ErrShapeMismatch, pred.Shape(), target.Shape())
		}

		got, want, err := pairs(labels, target)
		if err != nil {
			return 0, err
		}
		correct := 0
		for i := range got {
			if got[i] == want[i] {
				correct++
			}
		}
		return float64(correct) / float64(len(got)), nil
	})
}

// MSE is the mean squared error.
func MSE() Metric {
	return New("MSE", meanSquaredError)
}

// RMSE is the root mean squared error.
func RMSE() Metric {
	return New("RMSE", func(pred, target *tensor.Tensor) (float64, error) {
		mse, err := meanSquaredError(pred, target)
		if err != nil {
			return 0, err
		}
		return math.Sqrt(mse), nil
	})
}

func meanSquaredError(pred, target *tensor.Tensor) (float64, error) {
	got, want, err := pairs(pred, target)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range got {
		d := float64(got[i]) - float64(want[i])
		sum += d * d
	}
	return sum / float64(len(got)), nil
}

// NLL is the mean negative log likelihood of the target classes, given
// predictions of log-probabilities shaped [N, C] and class ids shaped [N].
func NLL() Metric {
	return New("NLL", negativeLogLikelihood)
}

// Perplexity is exp(NLL).
func Perplexity() Metric {
	return New("Perplexity", func(pred, target *tensor.Tensor) (float64, error) {
		nll, err := negativeLogLikelihood(pred, target)
		if err != nil {
			return 0, err
		}
		return math.Exp(nll), nil
	})
}

func negativeLogLikelihood(pred, target *tensor.Tensor) (float64, error) {
	if pred.Dims() != 2 || target.Dims() != 1 || pred.Len() != target.Len() {
		return 0, fmt.Errorf("%w: expected log-probabilities [N, C] and targets [N], got %v and %v", tensor.ErrShapeMismatch, pred.Shape(), target.Shape())
	}
	n := target.Len()
	if n == 0 {
		return 0, ErrEmptyInput
	}
	classes := pred.Shape()[1]
	logp := pred.Data()
	ids := target.Data()

	var sum float64
	for i, id := range ids {
		c := int(id)
		if float32(c) != id || c < 0 || c >= classes {
			return 0, fmt.Errorf("target %d is not a class index in [0, %d): %v", i, classes, id)
		}
		sum -= float64(logp[i*classes+c])
	}
	return sum / float64(n), nil
}

// AUC is the area under the ROC curve for binary targets, computed from
// score ranks with ties averaged.
func AUC() Metric {
	return New("AUC", func(pred, target *tensor.Tensor) (float64, error) {
		scores, labels, err := pairs(pred, target)
		if err != nil {
			return 0, err
		}

		order := make([]int, len(scores))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

		ranks := make([]float64, len(scores))
		for i := 0; i < len(order); {
			j := i
			for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
				j++
			}
			// ranks are 1-based; tied scores share the mean rank
			avg := float64(i+j)/2 + 1
			for k := i; k <= j; k++ {
				ranks[order[k]] = avg
			}
			i = j + 1
		}

		var positives, negatives int
		var positiveRanks float64
		for i, label := range labels {
			switch label {
			case 1:
				positives++
				positiveRanks += ranks[i]
			case 0:
				negatives++
			default:
				return 0, fmt.Errorf("target %d is not binary: %v", i, label)
			}
		}
		if positives == 0 || negatives == 0 {
			return 0, fmt.Errorf("%w: AUC needs both positive and negative targets", ErrUndefined)
		}

		p, n := float64(positives), float64(negatives)
		return (positiveRanks - p*(p+1)/2) / (p * n), nil
	})
}

// pairs returns the flattened values of two tensors holding the same number of elements.
func pairs(pred, target *tensor.Tensor) ([]float32, []float32, error) {
	if pred.Size() != target.Size() {
		return nil, nil, fmt.Errorf("%w: prediction %v and target %v differ in size", tensor.ErrShapeMismatch, pred.Shape(), target.Shape())
	}
	if pred.Size() == 0 {
		return nil, nil, ErrEmptyInput
	}
	return pred.Data(), target.Data(), nil
}
