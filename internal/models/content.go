package models

// WorksheetContent is a worksheet together with its problems and passages.
// Drafts being edited by a teacher live only in this form until persisted.
type WorksheetContent struct {
	Worksheet Worksheet `json:"worksheet"`
	Problems  []Problem `json:"problems"`
	Passages  []Passage `json:"passages,omitempty"`
	Persisted bool      `json:"persisted"`
}

func (c *WorksheetContent) FindProblem(id string) (*Problem, int) {
	for i := range c.Problems {
		if c.Problems[i].ID == id {
			return &c.Problems[i], i
		}
	}
	return nil, -1
}

func (c *WorksheetContent) FindPassage(id string) (*Passage, int) {
	for i := range c.Passages {
		if c.Passages[i].ID == id {
			return &c.Passages[i], i
		}
	}
	return nil, -1
}

// ProblemsSharingPassage returns every problem other than exceptID linked to passageID.
func (c *WorksheetContent) ProblemsSharingPassage(passageID, exceptID string) []Problem {
	var siblings []Problem
	for _, p := range c.Problems {
		if p.ID == exceptID {
			continue
		}
		if pid, ok := p.PassageID(); ok && pid == passageID {
			siblings = append(siblings, p)
		}
	}
	return siblings
}

// ReplaceProblem swaps the problem with the same ID. It reports false when absent.
func (c *WorksheetContent) ReplaceProblem(p Problem) bool {
	if _, i := c.FindProblem(p.ID); i >= 0 {
		c.Problems[i] = p
		return true
	}
	return false
}

func (c *WorksheetContent) ReplacePassage(p Passage) bool {
	if _, i := c.FindPassage(p.ID); i >= 0 {
		c.Passages[i] = p
		return true
	}
	return false
}

// ProblemIDs returns the problem identifiers in worksheet order.
func (c *WorksheetContent) ProblemIDs() []string {
	ids := make([]string, len(c.Problems))
	for i, p := range c.Problems {
		ids[i] = p.ID
	}
	return ids
}
