package models

// 病毒扫描状态机: pending → scanning → {clean | infected | error}
const (
	ScanStatusPending  = "pending"
	ScanStatusScanning = "scanning"
	ScanStatusClean    = "clean"
	ScanStatusInfected = "infected"
	ScanStatusError    = "error"
)

// 处理状态机: pending → processing → {completed | failed}
const (
	ProcessingStatusPending    = "pending"
	ProcessingStatusProcessing = "processing"
	ProcessingStatusCompleted  = "completed"
	ProcessingStatusFailed     = "failed"
)

// 扫描状态的合法迁移表，非法迁移在写库前就被拒绝，
// 避免散落各处的字符串比较
var scanTransitions = map[string][]string{
	ScanStatusPending:  {ScanStatusScanning},
	ScanStatusScanning: {ScanStatusClean, ScanStatusInfected, ScanStatusError},
	ScanStatusClean:    {},
	ScanStatusInfected: {},
	ScanStatusError:    {},
}

var processingTransitions = map[string][]string{
	ProcessingStatusPending:    {ProcessingStatusProcessing},
	ProcessingStatusProcessing: {ProcessingStatusCompleted, ProcessingStatusFailed},
	ProcessingStatusCompleted:  {},
	ProcessingStatusFailed:     {},
}

// CanTransitionScanStatus 判断扫描状态能否从 from 迁移到 to
func CanTransitionScanStatus(from, to string) bool {
	return containsTransition(scanTransitions[from], to)
}

// CanTransitionProcessingStatus 判断处理状态能否从 from 迁移到 to
func CanTransitionProcessingStatus(from, to string) bool {
	return containsTransition(processingTransitions[from], to)
}

func containsTransition(allowed []string, to string) bool {
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
