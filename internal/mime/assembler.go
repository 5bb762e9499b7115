package mime

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/haiminhvu/mailflow/internal/domain"
)

// htmlShell wraps every body in the same minimal document. The shell is
// fixed so providers render the message consistently.
const htmlShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
%s
</body>
</html>`

const base64LineLength = 76

// BuildRaw assembles a transport-ready message and returns it base64url
// encoded without padding, the form the mail provider's raw-send endpoint
// expects. With no attachments the message is a single HTML part; otherwise
// a multipart/mixed envelope with one base64 part per attachment.
func BuildRaw(to, subject, htmlBody string, attachments []domain.Attachment, fromOverride string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("%w: recipient address is required", domain.ErrAssembly)
	}
	if total := domain.TotalAttachmentBytes(attachments); total > domain.MaxDispatchAttachmentBytes {
		return "", fmt.Errorf("%w: attachments total %d bytes exceeds %d", domain.ErrValidation, total, domain.MaxDispatchAttachmentBytes)
	}

	var b strings.Builder
	if fromOverride != "" {
		fmt.Fprintf(&b, "From: %s\r\n", fromOverride)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		b.WriteString("\r\n")
		fmt.Fprintf(&b, htmlShell, htmlBody)
		b.WriteString("\r\n")
		return base64.RawURLEncoding.EncodeToString([]byte(b.String())), nil
	}

	boundary := "====mailflow_" + uuid.NewString()
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	b.WriteString(wrapBase64(base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf(htmlShell, htmlBody)))))
	b.WriteString("\r\n")

	for _, att := range attachments {
		name := sanitizeFilename(att.Name)
		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s; name=%q\r\n", mimeType, name)
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", name)
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(wrapBase64(att.Base64))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return base64.RawURLEncoding.EncodeToString([]byte(b.String())), nil
}

// encodeHeader B-encodes a header value when it carries non-ASCII runes,
// per RFC 2047. Plain ASCII passes through untouched.
func encodeHeader(value string) string {
	ascii := true
	for _, r := range value {
		if r > unicode.MaxASCII {
			ascii = false
			break
		}
	}
	if ascii {
		return value
	}
	return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(value)) + "?="
}

// sanitizeFilename strips characters that could smuggle extra headers into
// the part header block.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("\r", "_", "\n", "_", `"`, "_")
	return replacer.Replace(name)
}

func wrapBase64(encoded string) string {
	if len(encoded) <= base64LineLength {
		return encoded
	}
	var b strings.Builder
	for len(encoded) > base64LineLength {
		b.WriteString(encoded[:base64LineLength])
		b.WriteString("\r\n")
		encoded = encoded[base64LineLength:]
	}
	b.WriteString(encoded)
	return b.String()
}
