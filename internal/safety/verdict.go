package safety

// Verdict is the outcome of screening a batch. The zero value rejects with
// CategoryUnavailable; only the gate can produce an accepting Verdict.
type Verdict struct {
	accepted bool
	reason   Category
	index    int
}

func accept() Verdict {
	return Verdict{accepted: true, index: -1}
}

func reject(reason Category, index int) Verdict {
	return Verdict{reason: reason, index: index}
}

func (v Verdict) Accepted() bool { return v.accepted }

// Reason is empty for an accepted verdict.
func (v Verdict) Reason() Category {
	if v.accepted {
		return ""
	}
	if v.reason == "" {
		return CategoryUnavailable
	}
	return v.reason
}

// Index is the position of the image that determined a rejection, or -1.
func (v Verdict) Index() int {
	if v.accepted {
		return -1
	}
	return v.index
}
