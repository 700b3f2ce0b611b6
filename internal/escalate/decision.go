package escalate

import (
	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

// Rule names disclosed in EscalationDecision.Reasons, in evaluation order.
const (
	ReasonDepthL0            = "depth_l0"
	ReasonEscalationDisabled = "escalation_disabled"
	ReasonAttemptsExhausted  = "attempts_exhausted"
	ReasonVeryLowConfidence  = "very_low_confidence"
	ReasonLowConfHighEntropy = "low_confidence_high_entropy"
	ReasonVeryHighEntropy    = "very_high_entropy"
)

// Input carries the signals the controller evaluates for one attempt.
type Input struct {
	Depth              retrieval.Depth
	TotalConfidence    float64
	RetrievalEntropy   float64
	PackCount          int
	EscalationAttempts int
	MaxEscalationDepth int
}

// Controller applies the escalation rules.
type Controller struct {
	logger *logging.Logger
}

// NewController creates an escalation controller.
func NewController(logger *logging.Logger) *Controller {
	return &Controller{logger: logger}
}

// Decide evaluates the escalation rules in order. Rules are not mutually
// exclusive: a later rule can add expansion on top of an earlier depth
// change. shouldEscalate is true iff the depth changed or expansion was
// forced. Depth never decreases.
func (c *Controller) Decide(in Input) retrieval.EscalationDecision {
	dec := retrieval.EscalationDecision{
		NextDepth:  in.Depth,
		Status:     StatusFor(in.TotalConfidence, in.PackCount),
		Confidence: in.TotalConfidence,
		Entropy:    in.RetrievalEntropy,
	}

	// Hard stops: shallow-only queries, disabled escalation, exhausted
	// attempts. These end the sequence with the depth unchanged.
	switch {
	case in.Depth == retrieval.DepthL0:
		dec.Reasons = append(dec.Reasons, ReasonDepthL0)
		return c.logged(dec)
	case in.MaxEscalationDepth <= 0:
		dec.Reasons = append(dec.Reasons, ReasonEscalationDisabled)
		return c.logged(dec)
	case in.EscalationAttempts >= in.MaxEscalationDepth:
		dec.Reasons = append(dec.Reasons, ReasonAttemptsExhausted)
		return c.logged(dec)
	}

	if in.TotalConfidence < 0.2 {
		dec.NextDepth = retrieval.DepthL3
		dec.ExpandQuery = true
		dec.Reasons = append(dec.Reasons, ReasonVeryLowConfidence)
	} else if in.TotalConfidence < 0.4 && in.RetrievalEntropy > 1.5 {
		dec.NextDepth = in.Depth.Bump()
		dec.Reasons = append(dec.Reasons, ReasonLowConfHighEntropy)
	}

	if in.RetrievalEntropy > 2.0 {
		if in.TotalConfidence < 0.4 || in.PackCount == 0 {
			dec.ExpandQuery = true
		}
		if dec.NextDepth == in.Depth {
			dec.NextDepth = in.Depth.Bump()
		}
		dec.Reasons = append(dec.Reasons, ReasonVeryHighEntropy)
	}

	dec.ShouldEscalate = dec.NextDepth != in.Depth || dec.ExpandQuery
	return c.logged(dec)
}

func (c *Controller) logged(dec retrieval.EscalationDecision) retrieval.EscalationDecision {
	if c.logger != nil {
		c.logger.Debug("escalation decision", map[string]interface{}{
			"shouldEscalate": dec.ShouldEscalate,
			"nextDepth":      string(dec.NextDepth),
			"expandQuery":    dec.ExpandQuery,
			"status":         string(dec.Status),
			"reasons":        dec.Reasons,
		})
	}
	return dec
}
