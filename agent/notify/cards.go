package notify

import (
	"strings"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
)

const notAvailable = "Chưa có"

func orDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func mdField(content string) map[string]any {
	return map[string]any{
		"is_short": true,
		"text":     map[string]any{"tag": "lark_md", "content": content},
	}
}

func header(template, title string) map[string]any {
	return map[string]any{
		"template": template,
		"title":    map[string]any{"tag": "plain_text", "content": title},
	}
}

func peopleBlock(name, phone, assignee string) map[string]any {
	return map[string]any{
		"tag": "div",
		"fields": []any{
			mdField("**Khách hàng: **" + orDefault(name)),
			mdField("**SĐT: **" + orDefault(phone)),
			mdField("**Nhân viên hỗ trợ: **" + assignee),
		},
	}
}

func interactive(head map[string]any, elements []any) map[string]any {
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"config":   map[string]any{"wide_screen_mode": true},
			"header":   head,
			"elements": elements,
		},
	}
}

func escalationCard(a contractx.EscalationAlert, assignee string) map[string]any {
	elements := []any{
		peopleBlock(a.CustomerName, a.CustomerPhone, assignee),
		map[string]any{"tag": "div", "text": map[string]any{"tag": "lark_md", "content": "**Tóm tắt vấn đề:**\n" + a.IssueSummary}},
		map[string]any{"tag": "hr"},
	}
	if url := strings.TrimSpace(a.ChatHistoryURL); url != "" {
		elements = append(elements, map[string]any{
			"tag": "action",
			"actions": []any{map[string]any{
				"tag":  "button",
				"type": "primary",
				"url":  url,
				"text": map[string]any{"tag": "plain_text", "content": "Xem Lịch sử & Tiếp nhận"},
			}},
		})
	}
	return interactive(header("red", "🚨 YÊU CẦU HỖ TRỢ KHẨN CẤP"), elements)
}

func courseChangeCard(a contractx.CourseChangeAlert, assignee string) map[string]any {
	return interactive(header("yellow", "🔔 THÔNG BÁO HỌC VIÊN HỦY KHÓA HỌC"), []any{
		peopleBlock(a.CustomerName, a.CustomerPhone, assignee),
		map[string]any{"tag": "div", "text": map[string]any{"tag": "lark_md", "content": "**Nội dung cụ thể:**\n" + a.Detail}},
		map[string]any{"tag": "hr"},
	})
}
