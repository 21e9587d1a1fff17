// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18n.DefaultLang()

		// ?lang= wins over the header so links can pin a locale
		if q := c.Query("lang"); q != "" {
			if resolved, ok := resolveLang(q); ok {
				lang = resolved
			}
		} else if header := c.GetHeader("Accept-Language"); header != "" {
			// Handle cases like "ko-KR,ko;q=0.9,en;q=0.8"
			for _, part := range strings.Split(header, ",") {
				tag := strings.TrimSpace(strings.Split(part, ";")[0])
				if resolved, ok := resolveLang(tag); ok {
					lang = resolved
					break
				}
			}
		}

		c.Set(utils.ContextLang, lang)
		c.Next()
	}
}

func resolveLang(tag string) (string, bool) {
	base := strings.ToLower(tag)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	for _, supported := range i18n.GetSupportedLanguages() {
		if supported == base {
			return supported, true
		}
	}
	return "", false
}
