package model

import (
	"encoding/json"
	"sort"
)

// Answer is one selected choice, the wire form of an AnswerSet entry.
type Answer struct {
	QuestionID  string `json:"question_id" binding:"required,max=64"`
	ChoiceIndex int    `json:"choice_index" binding:"min=0"`
}

// AnswerSet maps question id to the selected choice index.
type AnswerSet map[string]int

// Clone returns an independent copy.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// List returns the answers in question display order. Answers for ids not in
// questions are appended afterwards sorted by id.
func (a AnswerSet) List(questions []Question) []Answer {
	out := make([]Answer, 0, len(a))
	seen := make(map[string]struct{}, len(a))
	for _, q := range questions {
		if idx, ok := a[q.ID]; ok {
			out = append(out, Answer{QuestionID: q.ID, ChoiceIndex: idx})
			seen[q.ID] = struct{}{}
		}
	}
	var rest []string
	for id := range a {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, Answer{QuestionID: id, ChoiceIndex: a[id]})
	}
	return out
}

// Complete reports whether every question has a selection.
func (a AnswerSet) Complete(questions []Question) bool {
	for _, q := range questions {
		if _, ok := a[q.ID]; !ok {
			return false
		}
	}
	return true
}

// Fingerprint is the serialized answer list used to skip redundant saves.
func Fingerprint(answers []Answer) string {
	raw, _ := json.Marshal(answers)
	return string(raw)
}

// AnswersFromList builds an AnswerSet from its wire form; later entries win.
func AnswersFromList(list []Answer) AnswerSet {
	out := make(AnswerSet, len(list))
	for _, a := range list {
		out[a.QuestionID] = a.ChoiceIndex
	}
	return out
}
