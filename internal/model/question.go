package model

// Question is a single multiple-choice question as served to a student.
type Question struct {
	ID          string   `json:"id"`
	Order       int      `json:"order"`
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices"`
	SavedChoice *int     `json:"saved_choice,omitempty"`
}

// ValidChoice reports whether i indexes one of the question's choices.
func (q Question) ValidChoice(i int) bool {
	return i >= 0 && i < len(q.Choices)
}

// CourseQuestion is a question together with its answer key. It never leaves the service.
type CourseQuestion struct {
	Question
	CorrectIndex int `json:"correct_index"`
}

// Course is a quiz definition owned by the reference service.
type Course struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	TimeLimitSeconds int              `json:"time_limit_seconds"`
	MaxAttempts      int              `json:"max_attempts"`
	PassScore        float64          `json:"pass_score"`
	Questions        []CourseQuestion `json:"questions"`
}

// StudentQuestions strips the answer key from the course questions.
func (c *Course) StudentQuestions() []Question {
	out := make([]Question, 0, len(c.Questions))
	for _, q := range c.Questions {
		out = append(out, q.Question)
	}
	return out
}
