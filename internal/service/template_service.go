// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/retention-backend/internal/model"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// Personalise fills the customer placeholders of a campaign message.
func Personalise(message string, c *model.Customer) string {
	return RenderTemplate(message, map[string]string{
		"name":  c.Name,
		"email": c.Email,
		"phone": c.Phone,
	})
}
