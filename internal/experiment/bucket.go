// Package experiment runs controlled experiments and anomaly detection
// over the learning pipeline.
package experiment

import (
	"hash/fnv"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// AssignGroup deterministically buckets a user into control or
// treatment. The hash is FNV-1a 64 over the raw user id bytes: stable
// across process restarts and platforms, unlike language-intrinsic
// string hashes, so a user's group can never flip mid-experiment.
func AssignGroup(userID string) models.ExperimentGroup {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	if h.Sum64()%2 == 0 {
		return models.GroupTreatment
	}
	return models.GroupControl
}
