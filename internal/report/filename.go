package report

import (
	"strings"
	"unicode"
)

const idPrefixLen = 8

// DownloadFilename builds the "save as" name for a finished report:
// <label>_<first 8 chars of id><extension>.
func DownloadFilename(j *Job) string {
	label := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(j.Label()))
	if label == "" {
		label = "Report"
	}

	id := j.ID
	if len(id) > idPrefixLen {
		id = id[:idPrefixLen]
	}
	return label + "_" + id + j.Format.Extension()
}

// TitleCase turns an identifier such as "student_attendance" or
// "MENTOR-FEEDBACK" into "Student Attendance" / "Mentor Feedback".
func TitleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
