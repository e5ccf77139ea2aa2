package aisession

import "regexp"

// escalationPatterns matches a small set of phrases indicating the
// assistant's reply itself suggests escalating to a human specialist (spec
// §4.5: "detected by matching against a small pattern set over the reply
// text"). Kept intentionally small and literal rather than ML-classified,
// matching the scale of everything else this router-adjacent layer does.
var escalationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)contact (a |an )?(human )?specialist`),
	regexp.MustCompile(`(?i)escalat(e|ing|ed) (this|your) (request|issue|case) to`),
	regexp.MustCompile(`(?i)I('m| am) not able to (help|assist) (you )?with this`),
	regexp.MustCompile(`(?i)свяж(итесь|емся) со специалистом`),
	regexp.MustCompile(`(?i)передам? (ваш )?запрос специалисту`),
}

// detectEscalation reports whether reply indicates the user should be
// offered the "contact specialist" affordance.
func detectEscalation(reply string) bool {
	for _, re := range escalationPatterns {
		if re.MatchString(reply) {
			return true
		}
	}
	return false
}
