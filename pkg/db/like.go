package db

import "strings"

// LikeEscape is the escape character paired with ContainsPattern. It is not a
// backslash because MySQL treats backslashes inside literals as escapes.
const LikeEscape = "!"

var likeReplacer = strings.NewReplacer(
	LikeEscape, LikeEscape+LikeEscape,
	"%", LikeEscape+"%",
	"_", LikeEscape+"_",
)

// ContainsPattern returns a LIKE pattern matching s as a literal substring.
// Use it with "... LIKE ? ESCAPE '!'".
func ContainsPattern(s string) string {
	return "%" + likeReplacer.Replace(s) + "%"
}
