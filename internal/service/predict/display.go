package predict

import (
	"fmt"
	"sort"

	"fooddetect/internal/service/ai"
	"fooddetect/internal/translate"
)

// NoFoodDetected is the only entry of the display list when the model
// found nothing.
const NoFoodDetected = "no food detected"

// FormatEntry renders one detection as "raw（label） - confidence: 0.87".
func FormatEntry(raw, label string, confidence float64) string {
	return fmt.Sprintf("%s（%s） - confidence: %.2f", raw, label, confidence)
}

// DisplayList formats every detection of inf, drops duplicates and sorts
// the result. An inference without detections yields [NoFoodDetected].
func DisplayList(inf *ai.Inference, translations *translate.Table) []string {
	if len(inf.Detections) == 0 {
		return []string{NoFoodDetected}
	}

	seen := make(map[string]struct{}, len(inf.Detections))
	entries := make([]string, 0, len(inf.Detections))
	for _, d := range inf.Detections {
		raw := inf.ClassName(d.ClassIndex)
		entry := FormatEntry(raw, translations.Translate(raw), d.Confidence)
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		entries = append(entries, entry)
	}

	sort.Strings(entries)
	return entries
}
