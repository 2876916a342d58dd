package speech

import "strings"

// Reason categories attached to released shifts. Best-effort tags for
// reporting; they never gate a release.
const (
	ReasonIllness            = "illness"
	ReasonFamilyEmergency    = "family_emergency"
	ReasonWorkConflict       = "work_conflict"
	ReasonTransportation     = "transportation"
	ReasonPersonal           = "personal"
	ReasonSchedulingConflict = "scheduling_conflict"
	ReasonOther              = "other"
)

// reasonRules is checked in order; the first category with a hit wins, so
// more specific signals sit above the catch-alls.
var reasonRules = []struct {
	category string
	words    []string
}{
	{ReasonFamilyEmergency, []string{"family", "emergency", "mum", "mom", "dad", "kids", "child", "daughter", "son", "funeral"}},
	{ReasonIllness, []string{"sick", "ill", "unwell", "flu", "fever", "covid", "doctor", "hospital", "migraine", "injury", "injured"}},
	{ReasonTransportation, []string{"car", "transport", "bus", "train", "ride", "lift", "broke", "broken", "flat", "license", "licence"}},
	{ReasonSchedulingConflict, []string{"double", "booked", "overlap", "clash", "clashes", "conflict", "rostered", "roster"}},
	{ReasonWorkConflict, []string{"work", "job", "shift", "overtime", "employer"}},
	{ReasonPersonal, []string{"personal", "appointment", "holiday", "vacation", "moving", "exam", "study"}},
}

// CategorizeReason tags a free-text release reason with one category.
func CategorizeReason(text string) string {
	words := splitWords(text)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	for _, rule := range reasonRules {
		for _, w := range rule.words {
			if set[w] {
				return rule.category
			}
		}
	}
	return ReasonOther
}

// ReasonContent strips filler so the call flow can judge whether the caller
// actually gave a reason ("um, uh" alone does not count).
func ReasonContent(text string) string {
	filler := map[string]bool{
		"um": true, "uh": true, "er": true, "ah": true, "hmm": true,
		"like": true, "well": true, "so": true,
	}
	var kept []string
	for _, w := range splitWords(text) {
		if !filler[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
