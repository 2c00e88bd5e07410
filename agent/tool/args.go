package tool

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexID accepts a JSON number or a numeric string; models emit both.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = flexID(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(int64(n))
	return nil
}

type courseArgs struct {
	CourseID flexID `json:"course_id"`
}

type keywordArgs struct {
	Keywords string `json:"keywords"`
}

type swapArgs struct {
	OrderID     flexID `json:"order_id"`
	OldCourseID flexID `json:"old_course_id"`
	NewCourseID flexID `json:"new_course_id"`
}

type orderArgs struct {
	OrderID flexID `json:"order_id"`
}

type profileArgs struct {
	OrderID  flexID `json:"order_id"`
	NewName  string `json:"new_name"`
	NewPhone string `json:"new_phone"`
	NewEmail string `json:"new_email"`
}

// decodeArgs reports false when the arguments are not a JSON object of the expected shape.
func decodeArgs(raw string, v any) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

const msgBadArgs = "Tham số công cụ không hợp lệ, hãy hỏi lại khách thông tin cần thiết."
