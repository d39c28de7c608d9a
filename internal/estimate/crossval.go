package estimate

import (
	"fmt"

	"github.com/stride-data/gaitmoment/internal/assemble"
)

// FoldResult holds the evaluation of one held-out subject fold.
type FoldResult struct {
	Subject    string    `json:"subject"`
	TrainSteps int       `json:"train_steps"`
	TestSteps  int       `json:"test_steps"`
	Metrics    []Metrics `json:"metrics"`
}

// CrossValidate runs leave-one-subject-out validation over the labeled
// samples of the dataset: each subject in turn is held out, a fresh model
// is trained on the rest, and the held-out subject's steps are scored.
// Per-subject results come back in subject order; training on one fold
// never sees the held-out subject's data, including scaler statistics.
func CrossValidate(tr *Trainer, ds *assemble.Dataset, channels []string) ([]FoldResult, error) {
	subjects := ds.Subjects()
	if len(subjects) < 2 {
		return nil, fmt.Errorf("leave-one-subject-out needs at least 2 subjects, have %d", len(subjects))
	}

	results := make([]FoldResult, 0, len(subjects))
	for _, subject := range subjects {
		train, test := ds.SplitBySubjects([]string{subject})
		if len(test) == 0 {
			logf("subject %s has no labeled steps, skipping fold", subject)
			continue
		}
		model, _, err := tr.Train(train)
		if err != nil {
			return nil, fmt.Errorf("fold %s: %w", subject, err)
		}
		metrics, err := Evaluate(model, test, channels)
		if err != nil {
			return nil, fmt.Errorf("fold %s: %w", subject, err)
		}
		for _, m := range metrics {
			logf("fold %s %s", subject, m)
		}
		results = append(results, FoldResult{
			Subject:    subject,
			TrainSteps: len(train),
			TestSteps:  len(test),
			Metrics:    metrics,
		})
	}
	return results, nil
}
