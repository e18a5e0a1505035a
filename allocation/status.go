package allocation

// CalculateStatus derives the allocation indicators for a period from its
// records. Pure: no I/O, no clock.
//
//	total     = sum of record minutes
//	remaining = net - total (negative when over-allocated)
func CalculateStatus(netDurationMinutes int, records []DurationRecord) AllocationStatus {
	total := 0
	for _, r := range records {
		total += r.DurationMinutes
	}
	remaining := netDurationMinutes - total
	return AllocationStatus{
		NetDurationMinutes:    netDurationMinutes,
		TotalAllocatedMinutes: total,
		RemainingMinutes:      remaining,
		IsFullyAllocated:      remaining == 0,
		IsOverAllocated:       remaining < 0,
	}
}
