package services

import "github.com/avatarctic/offline-sync-engine/internal/core/ports"

type nopMetrics struct{}

func (nopMetrics) Dispatched(string, string) {}
func (nopMetrics) Evicted(string, int)       {}
func (nopMetrics) QueueLength(int)           {}
func (nopMetrics) Replayed(int, int)         {}
func (nopMetrics) PartitionDropped(string)   {}

func metricsOrNop(m ports.EngineMetrics) ports.EngineMetrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
