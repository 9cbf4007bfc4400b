package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamKey returns the cache key for a cached exam catalog record.
func (r *CacheKeyStruct) ExamKey(examID string) string {
	return fmt.Sprintf("exam:%s:catalog", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel carrying live proctor
// events for an exam.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:proctor_monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
