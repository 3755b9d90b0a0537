package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptKey returns the key of an attempt record hash
func (r *CacheKeyStruct) AttemptKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s", attemptID)
}

// AttemptAnswersKey returns the key of an attempt's answers hash
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptLeavesKey returns the key of an attempt's leave event list
func (r *CacheKeyStruct) AttemptLeavesKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:leaves", attemptID)
}

// StudentCourseAttemptsKey returns the key of the ordered attempt ids of a student in a course
func (r *CacheKeyStruct) StudentCourseAttemptsKey(studentID int, courseID string) string {
	return fmt.Sprintf("student:%d:course:%s:attempts", studentID, courseID)
}

var CacheKey = NewCacheKeyStruct()
