package mime

import (
	"regexp"
	"strings"
)

var (
	invisibleSpanRe = regexp.MustCompile(`(?is)<span[^>]*style="[^"]*display\s*:\s*none[^"]*"[^>]*>.*?</span>`)
	divRe           = regexp.MustCompile(`(?is)<div[^>]*>(.*?)</div>`)
	blockElementRe  = regexp.MustCompile(`(?i)<(div|p|br|img)\b`)
	imgRe           = regexp.MustCompile(`(?is)<img([^>]*)>`)
	imgSrcRe        = regexp.MustCompile(`(?i)src="(https?://[^"]*)"`)
	imgDataRe       = regexp.MustCompile(`(?i)data-[^=]*="([^"]*)"`)
	imgAltRe        = regexp.MustCompile(`(?i)alt="([^"]*)"`)
	anchorRe        = regexp.MustCompile(`(?is)<a([^>]*)>(.*?)</a>`)
	hrefRe          = regexp.MustCompile(`(?i)href="([^"]*)"`)
	targetRe        = regexp.MustCompile(`(?i)target="([^"]*)"`)
	manyBreaksRe    = regexp.MustCompile(`(?i)(<br\s*/?>){3,}`)
	leadingBreaksRe = regexp.MustCompile(`(?i)^(<br\s*/?>)+`)
	trailingBreakRe = regexp.MustCompile(`(?i)(<br\s*/?>)+$`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// CleanSignatureHTML normalizes the HTML a provider returns for the user's
// send-as signature. Provider-generated markup carries tracking spans,
// deeply nested divs and duplicated image attributes that render badly when
// pasted under an outgoing message.
func CleanSignatureHTML(sig string) string {
	if sig == "" {
		return ""
	}

	cleaned := invisibleSpanRe.ReplaceAllString(sig, "")

	cleaned = divRe.ReplaceAllStringFunc(cleaned, func(match string) string {
		inner := strings.TrimSpace(divRe.FindStringSubmatch(match)[1])
		if inner == "" {
			return ""
		}
		lower := strings.ToLower(inner)
		if strings.HasSuffix(lower, "<br>") || strings.HasSuffix(lower, "<br/>") {
			return inner
		}
		if blockElementRe.MatchString(inner) {
			return inner
		}
		return inner + "<br>"
	})

	cleaned = imgRe.ReplaceAllStringFunc(cleaned, func(match string) string {
		attrs := imgRe.FindStringSubmatch(match)[1]

		var src string
		if m := imgSrcRe.FindStringSubmatch(attrs); m != nil {
			src = m[1]
		} else if m := imgDataRe.FindStringSubmatch(attrs); m != nil {
			src = m[1]
		}
		if src == "" {
			return ""
		}

		alt := ` alt="Signature"`
		if m := imgAltRe.FindStringSubmatch(attrs); m != nil {
			alt = ` alt="` + m[1] + `"`
		}
		return `<img src="` + src + `"` + alt + ` style="max-width: 400px; height: auto;">`
	})

	cleaned = anchorRe.ReplaceAllStringFunc(cleaned, func(match string) string {
		parts := anchorRe.FindStringSubmatch(match)
		attrs, content := parts[1], parts[2]

		m := hrefRe.FindStringSubmatch(attrs)
		if m == nil {
			return content
		}

		var target string
		if t := targetRe.FindStringSubmatch(attrs); t != nil {
			target = ` target="` + t[1] + `"`
		}
		return `<a href="` + m[1] + `"` + target + `>` + content + `</a>`
	})

	cleaned = manyBreaksRe.ReplaceAllString(cleaned, "<br><br>")
	cleaned = leadingBreaksRe.ReplaceAllString(cleaned, "")
	cleaned = trailingBreakRe.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")

	return strings.TrimSpace(cleaned)
}
