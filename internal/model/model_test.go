package model_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/mirrorkeeper/internal/model"
)

var _ = Describe("Model JSON", func() {
	It("round-trips Target JSON", func() {
		target := model.Target{
			ID:            "github:acme",
			ProviderKind:  model.ProviderGitHub,
			Host:          "github.com",
			ScopeSegments: []string{"acme"},
			Root:          "/mirrors",
			Exclude:       []string{"*-archive"},
			MissingPolicy: "archive",
		}

		data, err := json.Marshal(target)
		Expect(err).NotTo(HaveOccurred())

		var decoded model.Target
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.ID).To(Equal(target.ID))
		Expect(decoded.ScopePath()).To(Equal("acme"))
	})

	It("round-trips RepoOutcome JSON", func() {
		now := time.Now().UTC()
		outcome := model.RepoOutcome{
			TargetID: "github:acme",
			RepoID:   "123",
			Path:     "/mirrors/github/acme/widgets",
			State:    model.StateFastForwarded,
			At:       now,
		}

		data, err := json.Marshal(outcome)
		Expect(err).NotTo(HaveOccurred())

		var decoded model.RepoOutcome
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.State).To(Equal(model.StateFastForwarded))
		Expect(decoded.RepoID).To(Equal(outcome.RepoID))
	})

	It("accumulates OutcomeCounters across repo states", func() {
		var counters model.OutcomeCounters
		counters.Add(model.StateUpToDate)
		counters.Add(model.StateFastForwarded)
		counters.Add(model.StateCloned)
		counters.Add(model.StatePresentDirty)
		counters.Add(model.StateDiverged)
		counters.Add(model.StateFailed)

		Expect(counters.UpToDate).To(Equal(1))
		Expect(counters.Updated).To(Equal(1))
		Expect(counters.Cloned).To(Equal(1))
		Expect(counters.SkippedDirty).To(Equal(1))
		Expect(counters.SkippedDiverged).To(Equal(1))
		Expect(counters.Failed).To(Equal(1))
	})
})
