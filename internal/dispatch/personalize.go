package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kianmehr/campaign-gateway/internal/model"
)

// Render substitutes {{key}} tokens in a template. Tokens without a
// matching key stay in the output verbatim.
func Render(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// Fields builds the substitution map for one recipient: the built-in
// email/first_name/last_name keys first, then the recipient's custom
// fields. A custom field with a built-in name wins.
func Fields(r *model.Recipient) map[string]string {
	data := map[string]string{
		"email":      r.Email,
		"first_name": r.FirstName,
		"last_name":  r.LastName,
	}
	if r.CustomFields != "" {
		var custom map[string]interface{}
		if err := json.Unmarshal([]byte(r.CustomFields), &custom); err == nil {
			for key, value := range custom {
				if value == nil {
					data[key] = ""
					continue
				}
				data[key] = fmt.Sprint(value)
			}
		}
	}
	return data
}
