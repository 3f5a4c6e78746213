package faceid_test

import (
	"testing"

	"github.com/hearthd/hearth/faceid"
	"github.com/hearthd/hearth/types"
	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func TestFaceID(t *testing.T) { TestingT(t) }

type VerifierSuite struct{}

var _ = Suite(&VerifierSuite{})

func (s *VerifierSuite) TestAllWithinThreshold(c *C) {
	v := faceid.NewVerifier()
	probe := types.Embedding{0, 0, 0}
	// Three stored samples, each at distance 0.5 from the probe.
	stored := []types.Embedding{
		{0.5, 0, 0},
		{0, 0.5, 0},
		{0, 0, 0.5},
	}
	verdict := v.Verify("alice", probe, stored)
	c.Check(verdict.Confidence, Equals, 1.0)
	c.Check(verdict.IsMatch, Equals, true)
	c.Check(verdict.UserID, Equals, "alice")
	c.Check(verdict.MinDistance, Equals, 0.5)
}

func (s *VerifierSuite) TestMajorityVoteToleratesOneBadSample(c *C) {
	v := faceid.NewVerifier()
	probe := types.Embedding{0, 0}
	stored := []types.Embedding{
		{0.1, 0},
		{0, 0.2},
		{9, 9}, // one bad enrollment shot
	}
	verdict := v.Verify("bob", probe, stored)
	c.Check(verdict.IsMatch, Equals, true)
	c.Check(verdict.Confidence > 0.6, Equals, true)
}

func (s *VerifierSuite) TestNonMatchHasNoUserID(c *C) {
	v := faceid.NewVerifier()
	probe := types.Embedding{0, 0}
	stored := []types.Embedding{
		{5, 5},
		{6, 6},
	}
	verdict := v.Verify("carol", probe, stored)
	c.Check(verdict.IsMatch, Equals, false)
	c.Check(verdict.UserID, Equals, "")
	c.Check(verdict.Confidence, Equals, 0.0)
}

func (s *VerifierSuite) TestBoundaryDistanceDoesNotCount(c *C) {
	v := &faceid.Verifier{OptimalThreshold: 1.2, ConfidenceThreshold: 0.6}
	probe := types.Embedding{0}
	stored := []types.Embedding{{1.2}} // exactly at the cutoff: strictly-less wins
	verdict := v.Verify("dave", probe, stored)
	c.Check(verdict.Confidence, Equals, 0.0)
	c.Check(verdict.IsMatch, Equals, false)
	c.Check(verdict.MinDistance, Equals, 1.2)
}
